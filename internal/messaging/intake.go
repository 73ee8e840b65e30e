package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/sdr-ai-platform/internal/debounce"
	"github.com/wolfman30/sdr-ai-platform/internal/dedupe"
	"github.com/wolfman30/sdr-ai-platform/internal/leads"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// IntakeStatus says what happened to an inbound event.
type IntakeStatus string

const (
	StatusQueued    IntakeStatus = "queued"
	StatusOutgoing  IntakeStatus = "ignored_outgoing"
	StatusEmpty     IntakeStatus = "ignored_empty"
	StatusDuplicate IntakeStatus = "duplicate"
	StatusInvalid   IntakeStatus = "invalid_sender"
	StatusError     IntakeStatus = "error"
)

// TurnFunc runs one conversation turn for a coalesced burst of messages.
type TurnFunc func(ctx context.Context, phone, displayName, text string) error

// InboundObserver records intake outcomes.
type InboundObserver interface {
	ObserveInbound(status string)
}

// Intake filters inbound events, drops redeliveries and hands each sender's
// burst to the debouncer.
type Intake struct {
	seen      dedupe.Store
	debouncer *debounce.Debouncer
	turn      TurnFunc
	region    string
	logger    *logging.Logger
	observer  InboundObserver
}

// IntakeOption customizes an Intake.
type IntakeOption func(*Intake)

// WithDefaultRegion sets the region used for numbers without country code.
func WithDefaultRegion(region string) IntakeOption {
	return func(i *Intake) {
		if region != "" {
			i.region = region
		}
	}
}

func WithInboundObserver(observer InboundObserver) IntakeOption {
	return func(i *Intake) {
		i.observer = observer
	}
}

func NewIntake(seen dedupe.Store, debouncer *debounce.Debouncer, turn TurnFunc, logger *logging.Logger, opts ...IntakeOption) *Intake {
	if seen == nil {
		panic("messaging: dedupe store required")
	}
	if debouncer == nil {
		panic("messaging: debouncer required")
	}
	if turn == nil {
		panic("messaging: turn handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	i := &Intake{
		seen:      seen,
		debouncer: debouncer,
		turn:      turn,
		region:    leads.DefaultRegion,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Accept processes one inbound event. Only infrastructure failures are
// returned as errors; filtered events report their status.
func (i *Intake) Accept(ctx context.Context, evt InboundEvent) (IntakeStatus, error) {
	status, err := i.accept(ctx, evt)
	if i.observer != nil {
		i.observer.ObserveInbound(string(status))
	}
	return status, err
}

func (i *Intake) accept(ctx context.Context, evt InboundEvent) (IntakeStatus, error) {
	if evt.IsOutgoing {
		return StatusOutgoing, nil
	}
	if !evt.HasText() {
		return StatusEmpty, nil
	}

	phone, err := leads.NormalizePhone(evt.SenderID, i.region)
	if err != nil {
		i.logger.Warn("inbound sender rejected", "sender_id", evt.SenderID, "error", err)
		return StatusInvalid, nil
	}

	marked := false
	if evt.MessageID != "" {
		fresh, err := i.seen.MarkSeen(ctx, evt.MessageID)
		if err != nil {
			// a broken dedupe backend must not drop leads; process the event
			i.logger.Warn("dedupe check failed", "message_id", evt.MessageID, "error", err)
		} else if !fresh {
			i.logger.Debug("duplicate inbound message ignored", "message_id", evt.MessageID)
			return StatusDuplicate, nil
		}
		marked = err == nil
	}

	displayName := strings.TrimSpace(evt.DisplayName)
	handler := func(ctx context.Context, senderKey, combined string) error {
		return i.turn(ctx, senderKey, displayName, combined)
	}
	if err := i.debouncer.Add(phone, strings.TrimSpace(evt.Text), handler); err != nil {
		// the message never reached a turn, so a redelivery must not count as a duplicate
		if marked {
			if ferr := i.seen.Forget(ctx, evt.MessageID); ferr != nil {
				i.logger.Warn("failed to release message id", "message_id", evt.MessageID, "error", ferr)
			}
		}
		if errors.Is(err, debounce.ErrClosed) {
			return StatusError, fmt.Errorf("messaging: intake closed: %w", err)
		}
		return StatusError, fmt.Errorf("messaging: buffer message: %w", err)
	}
	return StatusQueued, nil
}
