package messaging

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

var gatewayTracer = otel.Tracer("sdr.internal.messaging.gateway")

// GatewayConfig points at an Evolution-style WhatsApp HTTP gateway.
type GatewayConfig struct {
	BaseURL  string
	APIKey   string
	Instance string
	Timeout  time.Duration
	Retries  int
}

// GatewaySender posts text messages to the WhatsApp gateway.
type GatewaySender struct {
	client   *resty.Client
	instance string
	logger   *logging.Logger
}

type sendTextBody struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func NewGatewaySender(cfg GatewayConfig, logger *logging.Logger) (*GatewaySender, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("messaging: gateway base url required")
	}
	if strings.TrimSpace(cfg.Instance) == "" {
		return nil, fmt.Errorf("messaging: gateway instance required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(250*time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("apikey", cfg.APIKey)
	}
	return &GatewaySender{client: client, instance: cfg.Instance, logger: logger}, nil
}

// SendText delivers text to a phone number in E.164.
func (s *GatewaySender) SendText(ctx context.Context, to, text string) bool {
	ctx, span := gatewayTracer.Start(ctx, "messaging.gateway.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("sdr.to", to))

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(sendTextBody{Number: strings.TrimPrefix(to, "+"), Text: text}).
		Post("/message/sendText/" + s.instance)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("whatsapp gateway send failed", "to", to, "error", err)
		return false
	}
	if resp.IsError() {
		err := fmt.Errorf("messaging: gateway status %d", resp.StatusCode())
		span.RecordError(err)
		s.logger.Error("whatsapp gateway rejected message",
			"to", to,
			"status", resp.StatusCode(),
			"body", truncate(resp.String(), 300),
		)
		return false
	}
	s.logger.Debug("whatsapp message sent", "to", to)
	return true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
