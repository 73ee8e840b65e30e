package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/sdr-ai-platform/internal/http/middleware"
	"github.com/wolfman30/sdr-ai-platform/internal/messaging"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger *logging.Logger
	// MessagingHandler serves the WhatsApp webhook. It is nil when the
	// direct WhatsApp connection is the only transport.
	MessagingHandler *messaging.Handler
	MetricsHandler   http.Handler
	// HealthChecks are named dependency probes reported by /health.
	HealthChecks map[string]HealthCheck
	// WebhookRateLimit is requests per second per client IP on webhook
	// routes; zero disables limiting.
	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.MessagingHandler != nil {
		r.Route("/webhooks", func(hooks chi.Router) {
			if cfg.WebhookRateLimit > 0 {
				hooks.Use(httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst, cfg.Logger).Middleware)
			}
			hooks.Post("/whatsapp", cfg.MessagingHandler.WhatsAppWebhook)
		})
	}

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports "ok" when every probe passes and "degraded" with
// 503 otherwise.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		code := http.StatusOK
		if len(names) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			resp.Checks = make(map[string]string, len(names))
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					code = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
