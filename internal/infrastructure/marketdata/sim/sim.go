package sim

import (
	"context"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
)

// Source synthesizes quotes for paper sessions without touching the
// network. Prices drift deterministically from a per-symbol base, so two
// runs over the same wall-clock minute see the same tape.
type Source struct {
	base map[string]float64
	now  func() time.Time
}

func NewSource(basePrices map[string]float64) *Source {
	return &Source{base: basePrices, now: time.Now}
}

func (s *Source) basePrice(symbol string) float64 {
	if p, ok := s.base[symbol]; ok && p > 0 {
		return p
	}
	// Unknown instruments get a stable pseudo price from the symbol hash.
	h := xxhash.Sum64String(symbol)
	return 10000 + float64(h%90000)
}

// wobble maps (symbol, bucket) to a factor in [0.97, 1.03].
func wobble(symbol string, bucket int64) float64 {
	h := xxhash.Sum64String(symbol + ":" + time.Unix(bucket*60, 0).UTC().Format("200601021504"))
	return 0.97 + float64(h%6001)/100000
}

func (s *Source) currentPrice(symbol string) float64 {
	bucket := s.now().Unix() / 60
	return s.basePrice(symbol) * wobble(symbol, bucket)
}

func (s *Source) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return s.currentPrice(symbol), nil
}

// GetOHLCV builds a synthetic daily history ending at the current price.
// The series carries enough structure for the indicators to produce
// non-degenerate values.
func (s *Source) GetOHLCV(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		limit = 30
	}
	base := s.basePrice(symbol)
	now := s.now()
	dayBucket := now.Unix() / 86400

	candles := make([]model.Candle, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		bucket := dayBucket - int64(i)
		factor := wobble(symbol, bucket*1440)
		// Gentle sine trend on top of the hash wobble.
		trend := 1 + 0.02*math.Sin(float64(bucket)/5)
		cl := base * factor * trend
		op := base * wobble(symbol, bucket*1440+1) * trend
		candles = append(candles, model.Candle{
			Open:   op,
			High:   math.Max(op, cl) * 1.01,
			Low:    math.Min(op, cl) * 0.99,
			Close:  cl,
			Volume: 500000 + float64(xxhash.Sum64String(symbol)%500000)*factor,
			Ts:     bucket * 86400 * 1000,
		})
	}

	// Pin the final close to the live quote so a position entered off the
	// history reviews against the same price within the cycle.
	last := &candles[len(candles)-1]
	last.Close = s.currentPrice(symbol)
	last.High = math.Max(last.Open, last.Close) * 1.01
	last.Low = math.Min(last.Open, last.Close) * 0.99

	return candles, nil
}

var _ port.MarketData = (*Source)(nil)
