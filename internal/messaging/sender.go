package messaging

import (
	"context"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// Sender delivers a text message. It reports delivery and never returns an
// error; failures are logged by the implementation.
type Sender interface {
	SendText(ctx context.Context, to, text string) bool
}

// DeliveryObserver records outbound delivery results.
type DeliveryObserver interface {
	ObserveOutbound(delivered bool)
}

// LogSender only logs outbound messages. Used in local mode.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendText(_ context.Context, to, text string) bool {
	s.logger.Info("outbound message (log only)", "to", to, "text", text)
	return true
}

// FailoverSender tries the primary transport, then the secondary.
type FailoverSender struct {
	primary       Sender
	secondary     Sender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverSender builds a failover sender with named transports.
func NewFailoverSender(primary Sender, primaryName string, secondary Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if primary == nil {
		panic("messaging: failover primary sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Sender = (*FailoverSender)(nil)

func (f *FailoverSender) SendText(ctx context.Context, to, text string) bool {
	if f.primary.SendText(ctx, to, text) {
		return true
	}
	if f.secondary == nil {
		return false
	}
	f.logger.Warn("primary whatsapp send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"to", to,
	)
	if !f.secondary.SendText(ctx, to, text) {
		f.logger.Error("fallback whatsapp send failed", "provider", f.secondaryName, "to", to)
		return false
	}
	return true
}

// ObservedSender counts delivery results of the wrapped sender.
type ObservedSender struct {
	next     Sender
	observer DeliveryObserver
}

func NewObservedSender(next Sender, observer DeliveryObserver) *ObservedSender {
	if next == nil {
		panic("messaging: sender required")
	}
	return &ObservedSender{next: next, observer: observer}
}

func (s *ObservedSender) SendText(ctx context.Context, to, text string) bool {
	ok := s.next.SendText(ctx, to, text)
	if s.observer != nil {
		s.observer.ObserveOutbound(ok)
	}
	return ok
}
