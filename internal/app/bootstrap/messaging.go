package bootstrap

import (
	"context"
	"strings"

	appconfig "github.com/wolfman30/sdr-ai-platform/internal/config"
	"github.com/wolfman30/sdr-ai-platform/internal/messaging"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// BuildDirectClient opens the whatsmeow connection when the transport
// preference allows it and a store path is configured. Failures are logged
// and return nil so the gateway can still serve.
func BuildDirectClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *messaging.DirectClient {
	if cfg == nil || strings.TrimSpace(cfg.WhatsmeowStorePath) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.WhatsAppTransport)) {
	case messaging.TransportGateway, messaging.TransportLog:
		return nil
	}
	client, err := messaging.NewDirectClient(ctx, messaging.DirectConfig{
		StorePath: cfg.WhatsmeowStorePath,
		LogLevel:  cfg.LogLevel,
	}, logger)
	if err != nil {
		logger.Warn("whatsmeow client not available", "error", err)
		return nil
	}
	return client
}

// BuildOutboundSender picks the outbound transport and wraps it with the
// delivery observer. A log-only sender is used when nothing else is
// configured so conversations still run locally.
func BuildOutboundSender(cfg *appconfig.Config, direct *messaging.DirectClient, observer messaging.DeliveryObserver, logger *logging.Logger) (messaging.Sender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	sel := messaging.SenderSelection{Direct: direct}
	if cfg != nil {
		sel.Preference = cfg.WhatsAppTransport
		sel.Gateway = messaging.GatewayConfig{
			BaseURL:  cfg.WhatsAppGatewayURL,
			APIKey:   cfg.WhatsAppAPIKey,
			Instance: cfg.WhatsAppInstance,
		}
	}

	sender, transport, reason := messaging.BuildSender(sel, logger)
	if sender == nil {
		logger.Warn("whatsapp transport not configured; replies are only logged", "reason", reason)
		sender, transport = messaging.NewLogSender(logger), messaging.TransportLog
	} else {
		logger.Info("whatsapp transport configured", "transport", transport)
	}
	return messaging.NewObservedSender(sender, observer), transport
}
