package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisStateStore shares conversation state between replicas. Keys never
// expire; a conversation is kept for as long as the lead exists.
type RedisStateStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisStateStore(client *redis.Client, tracer trace.Tracer) *RedisStateStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("sdr.internal.conversation.state")
	}
	return &RedisStateStore{redis: client, tracer: tracer}
}

func (s *RedisStateStore) Save(ctx context.Context, state *State) error {
	if state == nil || state.Phone == "" {
		return errors.New("conversation: state without phone")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.save_state")
	defer span.End()
	span.SetAttributes(attribute.String("sdr.stage", string(state.Stage)))

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, stateKey(state.Phone), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Load(ctx context.Context, phone string) (*State, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, stateKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	stage, err := ParseStage(string(state.Stage))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: state for %s: %w", phone, err)
	}
	state.Stage = stage
	return &state, nil
}

func stateKey(phone string) string {
	return fmt.Sprintf("conversation_state:%s", phone)
}
