package bootstrap

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	appconfig "github.com/wolfman30/sdr-ai-platform/internal/config"
	"github.com/wolfman30/sdr-ai-platform/internal/conversation"
	"github.com/wolfman30/sdr-ai-platform/internal/dedupe"
	"github.com/wolfman30/sdr-ai-platform/internal/leads"
	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	DedupeMemory   = "memory"
	DedupeRedis    = "redis"
	DedupePostgres = "postgres"

	// dedupeProvider keys processed message ids in Postgres.
	dedupeProvider = "whatsapp"
)

// BuildLeadRepository prefers Postgres when a pool is available.
func BuildLeadRepository(pool *pgxpool.Pool) leads.Repository {
	if pool == nil {
		return leads.NewInMemoryRepository()
	}
	return leads.NewPostgresRepository(pool)
}

// BuildStateStore keeps conversation state in Redis when available so
// restarts do not reset the flow.
func BuildStateStore(client *redis.Client) conversation.StateStore {
	if client == nil {
		return conversation.NewMemoryStateStore()
	}
	return conversation.NewRedisStateStore(client, otel.Tracer("sdr.internal.conversation"))
}

// BuildDedupeStore selects the processed-message store. Backends that need a
// missing connection fall back to memory with a warning.
func BuildDedupeStore(cfg *appconfig.Config, pool *pgxpool.Pool, client *redis.Client, logger *logging.Logger) (dedupe.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	memory := func() dedupe.Store { return dedupe.NewMemoryStore(cfg.DedupeSize, cfg.DedupeTTL) }

	backend := strings.ToLower(strings.TrimSpace(cfg.DedupeBackend))
	switch backend {
	case DedupeMemory, "":
		return memory(), nil
	case DedupeRedis:
		if client == nil {
			logger.Warn("dedupe backend redis requested but redis is not available; using memory")
			return memory(), nil
		}
		return dedupe.NewRedisStore(client, cfg.DedupeTTL, otel.Tracer("sdr.internal.dedupe")), nil
	case DedupePostgres:
		if pool == nil {
			logger.Warn("dedupe backend postgres requested but DATABASE_URL is not set; using memory")
			return memory(), nil
		}
		return dedupe.NewPostgresStore(pool, dedupeProvider), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown dedupe backend %q", cfg.DedupeBackend)
	}
}
