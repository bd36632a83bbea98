package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/redact-client/interfaces"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "redact:session:"

// RedisStore keeps session records in Redis with a server-side expiry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL connects to a redis:// or rediss:// URL.
func NewRedisStoreFromURL(ctx context.Context, rawURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping: %w", interfaces.ErrBackendUnavailable, err)
	}

	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) Create(ctx context.Context, record interfaces.SessionRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(record.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %w", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (interfaces.SessionRecord, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return interfaces.SessionRecord{}, interfaces.ErrNotFound
	}
	if err != nil {
		return interfaces.SessionRecord{}, fmt.Errorf("%w: redis get: %w", interfaces.ErrBackendUnavailable, err)
	}

	var record interfaces.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return interfaces.SessionRecord{}, fmt.Errorf("corrupt session record: %w", err)
	}
	return record, nil
}

func (s *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: redis del: %w", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
