package marketdata

import (
	"context"
	"strconv"
	"time"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/cache"
)

// TTLs controls how long each feed result stays fresh.
type TTLs struct {
	Price time.Duration
	OHLCV time.Duration
}

func (t TTLs) withDefaults() TTLs {
	if t.Price <= 0 {
		t.Price = 5 * time.Minute
	}
	if t.OHLCV <= 0 {
		t.OHLCV = 30 * time.Minute
	}
	return t
}

// Cached wraps a market data source with the durable result cache, so
// repeated reads within a cycle do not spend the query budget twice.
type Cached struct {
	inner port.MarketData
	cache *cache.Cache
	ttl   TTLs
}

func NewCached(inner port.MarketData, store *cache.Cache, ttl TTLs) *Cached {
	return &Cached{inner: inner, cache: store, ttl: ttl.withDefaults()}
}

func (c *Cached) GetPrice(ctx context.Context, symbol string) (float64, error) {
	key := cache.Key("price", symbol)
	return cache.Fetch(ctx, c.cache, key, c.ttl.Price, func(ctx context.Context) (float64, error) {
		return c.inner.GetPrice(ctx, symbol)
	})
}

func (c *Cached) GetOHLCV(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	key := cache.Key("ohlcv", symbol, strconv.Itoa(limit))
	return cache.Fetch(ctx, c.cache, key, c.ttl.OHLCV, func(ctx context.Context) ([]model.Candle, error) {
		return c.inner.GetOHLCV(ctx, symbol, limit)
	})
}

var _ port.MarketData = (*Cached)(nil)
