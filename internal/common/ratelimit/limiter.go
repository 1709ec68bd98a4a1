// Package ratelimit enforces fixed-window request limits backed by redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"codearena/internal/common/cache"
	pkgerrors "codearena/pkg/errors"
)

const defaultCacheTimeout = 500 * time.Millisecond

// Limiter counts hits per key within a fixed window.
type Limiter struct {
	counter      cache.Counter
	window       time.Duration
	cacheTimeout time.Duration
}

// NewLimiter builds a limiter. A zero cacheTimeout uses 500ms.
func NewLimiter(counter cache.Counter, window, cacheTimeout time.Duration) *Limiter {
	if cacheTimeout <= 0 {
		cacheTimeout = defaultCacheTimeout
	}
	return &Limiter{counter: counter, window: window, cacheTimeout: cacheTimeout}
}

// Allow records one hit for key and fails with TooManyRequests once max is exceeded.
// A non-positive max disables the check; a zero window uses the limiter default.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.counter == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = l.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.cacheTimeout)
	defer cancel()

	acquired, err := l.counter.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.counter.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// A key left without expiry would block forever.
		if ttl, ttlErr := l.counter.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
			_ = l.counter.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}
