package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	"stockpilot/internal/infrastructure/svc"
)

// RetryPolicy bounds the exponential backoff applied to a cache miss before
// the underlying call is given up on. An explicit loop, never recursion, so
// the attempt budget is a hard cap.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy retries three times with a 4s base doubling up to a 10s
// cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   4 * time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// Cache memoizes idempotent read operations in a durable keyed store.
// Entries survive process restarts. Writes are best-effort: a failed write
// is logged and never fails the call. A read or decode failure is a miss,
// not an error.
type Cache struct {
	store port.CacheStore
	retry RetryPolicy
}

func New(store port.CacheStore, retry RetryPolicy) *Cache {
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Cache{store: store, retry: retry}
}

// Key derives a stable cache key from an operation name and its arguments.
func Key(op string, args ...string) string {
	return fmt.Sprintf("%s:%016x", op, xxhash.Sum64String(strings.Join(args, "\x1f")))
}

// Fetch returns the cached value for key when a fresh entry exists,
// otherwise invokes fn under the retry policy and persists the result.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if payload, ok, err := c.store.CacheGet(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
	} else if ok {
		var cached T
		if err := json.Unmarshal(payload, &cached); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache decode failed, treating as miss")
		} else {
			return cached, nil
		}
	}

	var result T
	err := c.withRetry(ctx, func() error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	if err != nil {
		return zero, err
	}

	if payload, err := json.Marshal(result); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
	} else if err := c.store.CachePut(ctx, key, payload, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}

	return result, nil
}

func (c *Cache) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := c.retry.BaseDelay

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.retry.Multiplier)
			if delay > c.retry.MaxDelay {
				delay = c.retry.MaxDelay
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			log.Debug().Err(err).Int("attempt", attempt).Msg("call failed, backing off")
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: %w", svc.ErrRetriesExhausted, lastErr)
}
