package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/sdr-ai-platform/internal/config"
	"github.com/wolfman30/sdr-ai-platform/internal/notify"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	EmailSES      = "ses"
	EmailSendGrid = "sendgrid"
	EmailLog      = "log"
	EmailNone     = "none"
)

// BuildEmailSender returns the sales email transport, or nil when emails
// are disabled or the provider is not configured.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	switch provider {
	case EmailNone, "":
		return nil, nil
	case EmailLog:
		return notify.NewStubEmailSender(logger), nil
	case EmailSendGrid:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; sales emails disabled")
			return nil, nil
		}
		return sender, nil
	case EmailSES:
		if awsCfg == nil {
			logger.Warn("ses selected but aws config is not loaded; sales emails disabled")
			return nil, nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
}

// BuildNotifier assembles the lifecycle event service: a Postgres timeline
// when a pool is available and sales emails when a sender and address are
// configured.
func BuildNotifier(cfg *appconfig.Config, pool *pgxpool.Pool, email notify.EmailSender, loc *time.Location, logger *logging.Logger) *notify.Service {
	var timeline notify.TimelineWriter
	if pool != nil {
		timeline = notify.NewPostgresTimeline(pool)
	} else {
		timeline = notify.NewMemoryTimeline()
	}

	opts := []notify.ServiceOption{notify.WithLocation(loc)}
	if email != nil && cfg != nil && strings.TrimSpace(cfg.SalesNotifyEmail) != "" {
		opts = append(opts, notify.WithSalesEmail(email, cfg.SalesNotifyEmail))
	} else if logger != nil {
		logger.Info("sales email notifications disabled")
	}
	return notify.NewService(timeline, logger, opts...)
}
