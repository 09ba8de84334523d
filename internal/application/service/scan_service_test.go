package service

import (
	"context"
	"sync/atomic"
	"testing"

	"stockpilot/internal/domain/model"
	domain "stockpilot/internal/domain/service"
	"stockpilot/internal/infrastructure/svc"
)

type mockMarketData struct {
	candles map[string][]model.Candle
	calls   atomic.Int64
}

func (m *mockMarketData) GetPrice(ctx context.Context, symbol string) (float64, error) {
	candles, ok := m.candles[symbol]
	if !ok || len(candles) == 0 {
		return 0, svc.ErrNoQuote
	}
	return candles[len(candles)-1].Close, nil
}

func (m *mockMarketData) GetOHLCV(ctx context.Context, symbol string, count int) ([]model.Candle, error) {
	m.calls.Add(1)
	candles, ok := m.candles[symbol]
	if !ok {
		return nil, svc.ErrInsufficientData
	}
	return candles, nil
}

type fixedSentiment int

func (f fixedSentiment) Index(ctx context.Context) int { return int(f) }

// declineThenRebound builds a series that scores above the buy floor under
// fearful sentiment.
func declineThenRebound() []model.Candle {
	candles := make([]model.Candle, 0, 40)
	price := 150.0
	for i := 0; i < 35; i++ {
		price *= 0.985
		candles = append(candles, model.Candle{Close: price, Volume: 1000})
	}
	for i := 0; i < 5; i++ {
		price *= 1.07
		candles = append(candles, model.Candle{Close: price, Volume: 2500})
	}
	return candles
}

func flatSeries() []model.Candle {
	candles := make([]model.Candle, 30)
	for i := range candles {
		candles[i] = model.Candle{Close: 100, Volume: 1000}
	}
	return candles
}

func TestScanCollectsQualifyingOpportunities(t *testing.T) {
	market := &mockMarketData{candles: map[string][]model.Candle{
		"ROKU": declineThenRebound(),
		"AAPL": flatSeries(),
	}}
	scorer := domain.NewScorer(domain.ScoringConfig{})
	s := NewScanService(market, fixedSentiment(20), scorer, 30, 4)

	found := s.Scan(context.Background(), []string{"ROKU", "AAPL", "MISSING"})
	if _, ok := found["ROKU"]; !ok {
		t.Error("expected ROKU opportunity")
	}
	if _, ok := found["AAPL"]; ok {
		t.Error("flat series must not qualify")
	}
	if _, ok := found["MISSING"]; ok {
		t.Error("instrument with no data must be excluded, not scored")
	}
	if found["ROKU"].Score < 50 {
		t.Errorf("score = %d, want >= 50", found["ROKU"].Score)
	}
}

func TestScanFailuresDoNotAbort(t *testing.T) {
	universe := []string{"A", "B", "C", "D", "ROKU"}
	market := &mockMarketData{candles: map[string][]model.Candle{
		"ROKU": declineThenRebound(),
	}}
	scorer := domain.NewScorer(domain.ScoringConfig{})
	s := NewScanService(market, fixedSentiment(20), scorer, 30, 2)

	found := s.Scan(context.Background(), universe)
	if len(found) != 1 {
		t.Errorf("expected the one healthy instrument, got %d", len(found))
	}
	if market.calls.Load() != int64(len(universe)) {
		t.Errorf("every instrument should be attempted: %d of %d", market.calls.Load(), len(universe))
	}
}

func TestScanEmptyUniverse(t *testing.T) {
	market := &mockMarketData{candles: map[string][]model.Candle{}}
	scorer := domain.NewScorer(domain.ScoringConfig{})
	s := NewScanService(market, fixedSentiment(50), scorer, 30, 10)

	if found := s.Scan(context.Background(), nil); len(found) != 0 {
		t.Errorf("expected empty result, got %d", len(found))
	}
}
