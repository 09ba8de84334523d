package port

import (
	"context"

	"stockpilot/internal/domain/model"
)

// MarketData supplies price quotes and OHLCV history. Implementations
// degrade transient upstream failures to errors; they never panic.
type MarketData interface {
	// GetPrice returns the latest trade price for the instrument.
	GetPrice(ctx context.Context, symbol string) (float64, error)
	// GetOHLCV returns up to count periods of history, oldest-first.
	GetOHLCV(ctx context.Context, symbol string, count int) ([]model.Candle, error)
}

// SentimentSource supplies a 0-100 fear/greed style market-mood index.
// Implementations return 50 (neutral) when the upstream is unavailable.
type SentimentSource interface {
	Index(ctx context.Context) int
}
