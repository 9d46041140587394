package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultKeyPrefix namespaces every key written by RedisStore
	DefaultKeyPrefix = "shadow-vote"
)

// RedisStore implements Storage interface using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// Compile-time interface compliance check
var _ Storage = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store whose keys never expire
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	return NewRedisStoreWithTTL(client, prefix, 0, logger)
}

// NewRedisStoreWithTTL creates a Redis-backed store with a per-key TTL (0 = no expiry)
func NewRedisStoreWithTTL(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// buildKey creates a Redis key
// Format: {prefix}:{key}
func (s *RedisStore) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// GetItem reads a value with GET
func (s *RedisStore) GetItem(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.buildKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		s.logger.Error("failed to get item",
			zap.String("key", key),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to get item: %w", err)
	}
	return value, nil
}

// SetItem writes a value with SET
func (s *RedisStore) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.buildKey(key), value, s.ttl).Err(); err != nil {
		s.logger.Error("failed to set item",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to set item: %w", err)
	}

	s.logger.Debug("item stored", zap.String("key", key))
	return nil
}

// RemoveItem deletes a value with DEL
func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.buildKey(key)).Err(); err != nil {
		s.logger.Error("failed to remove item",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("failed to remove item: %w", err)
	}

	s.logger.Debug("item removed", zap.String("key", key))
	return nil
}
