package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface the grader service relies on.
type Cache interface {
	// Get returns "" with a nil error when key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value; a zero ttl never expires.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error

	SAdd(ctx context.Context, key string, members ...interface{}) error

	SRem(ctx context.Context, key string, members ...interface{}) error

	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error

	Close() error
}

// Counter backs fixed-window counters such as rate limits.
type Counter interface {
	// SetNX sets key only when it does not exist and reports whether it did.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Incr(ctx context.Context, key string) (int64, error)

	// TTL returns a negative duration when key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
}
