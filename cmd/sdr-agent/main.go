package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/sdr-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/sdr-ai-platform/internal/api/router"
	"github.com/wolfman30/sdr-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/sdr-ai-platform/internal/config"
	"github.com/wolfman30/sdr-ai-platform/internal/conversation"
	"github.com/wolfman30/sdr-ai-platform/internal/debounce"
	"github.com/wolfman30/sdr-ai-platform/internal/dedupe"
	"github.com/wolfman30/sdr-ai-platform/internal/messaging"
	"github.com/wolfman30/sdr-ai-platform/internal/notify"
	"github.com/wolfman30/sdr-ai-platform/internal/observability/metrics"
	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
	"github.com/wolfman30/sdr-ai-platform/internal/research"
	"github.com/wolfman30/sdr-ai-platform/internal/scheduling"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	shutdownTimeout     = 30 * time.Second
	dedupePruneInterval = time.Hour
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting sdr agent",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sdr agent stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("sdr agent stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	} else {
		logger.Warn("DATABASE_URL not set; leads and appointments are kept in memory")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var awsCfgPtr *aws.Config
	if awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg); err != nil {
		logger.Warn("aws config not loaded; bedrock and ses unavailable", "error", err)
	} else {
		awsCfgPtr = &awsCfg
	}

	registry, metricsHandler := setupMetrics()
	conversationMetrics := metrics.NewConversationMetrics(registry)

	leadRepo := bootstrap.BuildLeadRepository(pool)
	stateStore := bootstrap.BuildStateStore(redisClient)
	seen, err := bootstrap.BuildDedupeStore(cfg, pool, redisClient, logger)
	if err != nil {
		return err
	}

	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfgPtr, logger)
	if err != nil {
		return err
	}
	model := bootstrap.ModelFor(cfg)
	extractor := qualification.NewExtractor(llmClient, logger,
		qualification.WithExtractionModel(model),
		qualification.WithExtractionObserver(conversationMetrics),
	)

	hours, err := bootstrap.BuildBusinessHours(cfg)
	if err != nil {
		return err
	}
	calendar, err := bootstrap.BuildCalendar(ctx, cfg, logger)
	if err != nil {
		return err
	}
	appointments := bootstrap.BuildAppointmentRepository(pool)
	finder := scheduling.NewFinder(calendar, hours, scheduling.WithFinderLogger(logger))
	booker := scheduling.NewBooker(calendar, appointments, hours,
		scheduling.WithBookerLogger(logger),
		scheduling.WithBookingObserver(conversationMetrics),
	)

	direct := bootstrap.BuildDirectClient(ctx, cfg, logger)
	if direct != nil {
		defer direct.Close()
	}
	sender, transport := bootstrap.BuildOutboundSender(cfg, direct, conversationMetrics, logger)

	emailSender, err := bootstrap.BuildEmailSender(cfg, awsCfgPtr, logger)
	if err != nil {
		return err
	}
	notifier := bootstrap.BuildNotifier(cfg, pool, emailSender, hours.Location, logger)

	deps := conversation.Deps{
		Leads:     leadRepo,
		States:    stateStore,
		Extractor: extractor,
		Gate:      qualification.NewGate(cfg.MinAnnualRevenue),
		Finder:    finder,
		Booker:    booker,
		Composer:  bootstrap.BuildComposer(llmClient, model),
		Sender:    sender,
		Notifier:  notifier,
	}
	if cfg.WebsiteResearchEnabled {
		deps.Researcher = research.NewResearcher(0, logger)
	}
	orchestrator := conversation.NewOrchestrator(deps, logger,
		conversation.WithOfferAfter(cfg.SchedulingOfferAfter),
		conversation.WithSlotSearch(cfg.SlotDaysAhead, cfg.SlotCount, cfg.MeetingDuration),
		conversation.WithTurnObserver(conversationMetrics),
	)

	debouncer := debounce.New(cfg.DebounceDelay, logger, debounce.WithObserver(conversationMetrics))
	intake := messaging.NewIntake(seen, debouncer, func(ctx context.Context, phone, displayName, text string) error {
		_, err := orchestrator.HandleMessage(ctx, conversation.Inbound{
			Phone:       phone,
			DisplayName: displayName,
			Text:        text,
		})
		return err
	}, logger,
		messaging.WithDefaultRegion(cfg.PhoneDefaultRegion),
		messaging.WithInboundObserver(conversationMetrics),
	)
	if direct != nil {
		direct.SetIntake(intake)
	}

	reminders := scheduling.NewReminderJob(appointments, sender, hours.Location, cfg.ReminderSchedule, logger)

	r := router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messaging.NewHandler(intake, logger),
		MetricsHandler:   metricsHandler,
		HealthChecks:     healthChecks(pool, redisClient),
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("sdr agent ready",
		"whatsapp_transport", transport,
		"llm_enabled", llmClient != nil,
		"calendar", cfg.CalendarProvider,
		"dedupe", cfg.DedupeBackend,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := reminders.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		reminders.Stop()
		return nil
	})
	if direct != nil {
		g.Go(func() error {
			if err := direct.Start(gctx); err != nil {
				logger.Error("whatsapp client failed to start", "error", err)
			}
			return nil
		})
	}
	if pruner, ok := seen.(*dedupe.PostgresStore); ok {
		g.Go(func() error {
			pruneProcessedMessages(gctx, pruner, cfg.DedupeTTL, logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, debouncer, notifier, logger)
	})

	return g.Wait()
}

// shutdown stops intake first so buffered messages flush into turns while
// the notifier and the outbound transports are still available.
func shutdown(srv *http.Server, debouncer *debounce.Debouncer, notifier *notify.Service, logger *logging.Logger) error {
	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := debouncer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("debouncer shutdown: %w", err))
	}
	if err := notifier.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("notifier shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func pruneProcessedMessages(ctx context.Context, store *dedupe.PostgresStore, ttl time.Duration, logger *logging.Logger) {
	if ttl <= 0 {
		return
	}
	olderThan := fmt.Sprintf("%d seconds", int64(ttl.Seconds()))
	ticker := time.NewTicker(dedupePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx, olderThan)
			if err != nil {
				logger.Warn("processed message prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("processed messages pruned", "removed", n)
			}
		}
	}
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
