package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps each owner's log as a JSON string value with a sliding TTL.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A ttl of zero keeps sessions forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("assistant: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("clubportal.internal.assistant.redis_store"),
		ttl:    ttl,
	}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Save(ctx context.Context, owner string, messages []Message) error {
	ctx, span := s.tracer.Start(ctx, "assistant.save_session")
	defer span.End()

	data, err := EncodeMessages(messages)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.redis.Set(ctx, SessionKey(owner), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, owner string) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "assistant.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, SessionKey(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to load session: %w", err)
	}

	messages, err := DecodeMessages(data)
	if err != nil {
		span.RecordError(err)
		return nil, nil
	}
	return messages, nil
}
