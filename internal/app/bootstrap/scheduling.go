package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/option"

	appconfig "github.com/wolfman30/sdr-ai-platform/internal/config"
	"github.com/wolfman30/sdr-ai-platform/internal/scheduling"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	CalendarGoogle = "google"
	CalendarMemory = "memory"
)

// BuildBusinessHours resolves the configured sales team hours.
func BuildBusinessHours(cfg *appconfig.Config) (scheduling.BusinessHours, error) {
	if cfg == nil {
		return scheduling.DefaultBusinessHours(), nil
	}
	hours, err := scheduling.NewBusinessHours(cfg.BusinessTimezone, cfg.WorkStartHour, cfg.WorkEndHour, cfg.WorkDays)
	if err != nil {
		return scheduling.BusinessHours{}, fmt.Errorf("bootstrap: business hours: %w", err)
	}
	return hours, nil
}

// BuildCalendar returns the Google calendar when configured, otherwise an
// in-memory calendar suitable for local runs.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (scheduling.Calendar, error) {
	if logger == nil {
		logger = logging.Default()
	}
	provider := CalendarMemory
	if cfg != nil {
		provider = strings.ToLower(strings.TrimSpace(cfg.CalendarProvider))
	}
	switch provider {
	case CalendarGoogle:
		if strings.TrimSpace(cfg.GoogleCalendarID) == "" {
			return nil, fmt.Errorf("bootstrap: GOOGLE_CALENDAR_ID is required for the google calendar")
		}
		var opts []option.ClientOption
		if cfg.GoogleCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
		}
		cal, err := scheduling.NewGoogleCalendar(ctx, cfg.GoogleCalendarID, opts...)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: google calendar: %w", err)
		}
		logger.Info("calendar configured", "provider", CalendarGoogle, "calendar_id", cfg.GoogleCalendarID)
		return cal, nil
	case CalendarMemory, "":
		logger.Warn("using in-memory calendar; bookings are not shared with the sales team")
		return scheduling.NewMemoryCalendar(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown calendar provider %q", provider)
	}
}

// BuildAppointmentRepository prefers Postgres when a pool is available.
func BuildAppointmentRepository(pool *pgxpool.Pool) scheduling.AppointmentRepository {
	if pool == nil {
		return scheduling.NewMemoryAppointmentRepository()
	}
	return scheduling.NewPostgresAppointmentRepository(pool)
}
