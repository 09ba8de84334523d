package ratelimit

import (
	"context"
	"sync"
	"time"

	"stockpilot/internal/infrastructure/svc"
)

// Defaults match the broker's published per-second ceilings.
const (
	DefaultWindow       = time.Second
	DefaultMaxOrders    = 5
	DefaultMaxQueries   = 10
	DefaultQueryWait    = 10 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// windowCounter counts acquisitions inside a rolling window. The mutex makes
// the check-and-increment linearizable, so the limit holds under concurrency.
type windowCounter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	count   int
	resetAt time.Time
}

func (c *windowCounter) tryAcquire(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !now.Before(c.resetAt) {
		c.count = 0
		c.resetAt = now.Add(c.window)
	}
	if c.count >= c.limit {
		return false
	}
	c.count++
	return true
}

// Gate bounds outbound order and query rates with independent rolling-window
// counters. Hitting a ceiling is not an error, only a signal to retry later;
// the gate never blocks order callers and bounds the wait for query callers.
type Gate struct {
	orders  *windowCounter
	queries *windowCounter
	maxWait time.Duration
	poll    time.Duration
}

type Config struct {
	Window     time.Duration
	MaxOrders  int
	MaxQueries int
	QueryWait  time.Duration
}

func NewGate(cfg Config) *Gate {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxOrders <= 0 {
		cfg.MaxOrders = DefaultMaxOrders
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = DefaultMaxQueries
	}
	if cfg.QueryWait <= 0 {
		cfg.QueryWait = DefaultQueryWait
	}
	return &Gate{
		orders:  &windowCounter{limit: cfg.MaxOrders, window: cfg.Window},
		queries: &windowCounter{limit: cfg.MaxQueries, window: cfg.Window},
		maxWait: cfg.QueryWait,
		poll:    defaultPollInterval,
	}
}

// TryOrder reserves one order slot in the current window. Never blocks.
func (g *Gate) TryOrder() bool {
	return g.orders.tryAcquire(time.Now())
}

// TryQuery reserves one query slot without waiting.
func (g *Gate) TryQuery() bool {
	return g.queries.tryAcquire(time.Now())
}

// AcquireQuery reserves a query slot, polling until the bounded maximum wait
// or context cancellation.
func (g *Gate) AcquireQuery(ctx context.Context) error {
	deadline := time.Now().Add(g.maxWait)
	for {
		if g.queries.tryAcquire(time.Now()) {
			return nil
		}
		if time.Now().After(deadline) {
			return svc.ErrThrottled
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.poll):
		}
	}
}
