// Package kv provides access to the remote key-value store backing all
// per-user health records. It contains the connection Manager (lazy dial,
// shared connect attempt, reconnect cooldown), the narrow Store interface the
// repositories are written against, and the Redis-backed implementation.
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNil is returned by Get and LPos when the key or element is absent.
// It is the expected, frequent "no record" case and is never logged as an error.
var ErrNil = errors.New("kv: nil")

// Store is the subset of key-value operations the record and auth
// repositories need. *redis.Client is adapted to it by redisStore;
// MemStore implements it in memory for tests and local development.
type Store interface {
	// Get returns the string value at key, or ErrNil if absent.
	Get(ctx context.Context, key string) (string, error)

	// SetEX writes value at key with a time-to-live.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error

	// Expire resets the TTL of an existing key. Missing keys are a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Del removes keys; missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// LRange returns list elements in [start, stop] (inclusive, -1 = end).
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// RPush appends values to the list at key, creating it if needed.
	RPush(ctx context.Context, key string, values ...string) error

	// LRem removes all occurrences of value from the list at key.
	LRem(ctx context.Context, key, value string) error

	// LPos returns the index of value in the list at key, or ErrNil.
	LPos(ctx context.Context, key, value string) (int64, error)

	// Ping checks backend liveness.
	Ping(ctx context.Context) error
}

// redisStore adapts *redis.Client to the Store interface, translating
// redis.Nil into ErrNil so callers never import the driver package.
type redisStore struct {
	c *redis.Client
}

func (s redisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return v, err
}

func (s redisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.c.SetEX(ctx, key, value, ttl).Err()
}

func (s redisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.c.Expire(ctx, key, ttl).Err()
}

func (s redisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.c.Del(ctx, keys...).Err()
}

func (s redisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.c.LRange(ctx, key, start, stop).Result()
}

func (s redisStore) RPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return s.c.RPush(ctx, key, args...).Err()
}

func (s redisStore) LRem(ctx context.Context, key, value string) error {
	return s.c.LRem(ctx, key, 0, value).Err()
}

func (s redisStore) LPos(ctx context.Context, key, value string) (int64, error) {
	idx, err := s.c.LPos(ctx, key, value, redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNil
	}
	return idx, err
}

func (s redisStore) Ping(ctx context.Context) error {
	return s.c.Ping(ctx).Err()
}
