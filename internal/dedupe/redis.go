package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore shares the seen-id set between replicas using SETNX with a TTL.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("dedupe: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("sdr.internal.dedupe")
	}
	return &RedisStore{redis: client, ttl: ttl, tracer: tracer}
}

func (s *RedisStore) MarkSeen(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, ErrEmptyID
	}
	ctx, span := s.tracer.Start(ctx, "dedupe.mark_seen")
	defer span.End()

	ok, err := s.redis.SetNX(ctx, seenKey(messageID), 1, s.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("dedupe: mark seen: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Forget(ctx context.Context, messageID string) error {
	if messageID == "" {
		return ErrEmptyID
	}
	if err := s.redis.Del(ctx, seenKey(messageID)).Err(); err != nil {
		return fmt.Errorf("dedupe: forget: %w", err)
	}
	return nil
}

func seenKey(id string) string {
	return fmt.Sprintf("dedupe:msg:%s", id)
}
