package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kaiwabot/internal/logger"
)

// RedisStore is the production KeyValueStore backend. TTL handling and the
// SetNX atomicity guarantee are delegated to Redis itself, so dedup and
// context state survive process restarts and are shared across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store backed by the Redis instance at addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	logger.Debug("Redis store initialized", "addr", addr, "db", db)
	return &RedisStore{client: client}
}

// NewRedisStoreFromClient wraps an existing client, used by tests against a
// miniredis or a shared pool.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping verifies connectivity to the backend.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping failed: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get implements KeyValueStore.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %q: %v", ErrStoreUnavailable, key, err)
	}
	return value, nil
}

// Set implements KeyValueStore.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set %q: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// SetNX implements KeyValueStore.
func (r *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	stored, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis setnx %q: %v", ErrStoreUnavailable, key, err)
	}
	return stored, nil
}

// Delete implements KeyValueStore.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: redis del %q: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
