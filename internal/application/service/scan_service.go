package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	domain "stockpilot/internal/domain/service"
)

const defaultScanWorkers = 10

// ScanService evaluates a universe of instruments concurrently and collects
// every opportunity meeting the buy floor. Individual instrument failures
// are logged and excluded, never abort a scan.
type ScanService struct {
	market      port.MarketData
	sentiment   port.SentimentSource
	scorer      *domain.Scorer
	historyBars int
	workers     int
}

func NewScanService(market port.MarketData, sentiment port.SentimentSource, scorer *domain.Scorer, historyBars, workers int) *ScanService {
	if historyBars <= 0 {
		historyBars = 30
	}
	if workers <= 0 {
		workers = defaultScanWorkers
	}
	return &ScanService{
		market:      market,
		sentiment:   sentiment,
		scorer:      scorer,
		historyBars: historyBars,
		workers:     workers,
	}
}

// Scan returns the opportunities found in the universe, keyed by instrument.
// The sentiment index is sampled once per scan so all instruments score
// against the same market mood.
func (s *ScanService) Scan(ctx context.Context, universe []string) map[string]*model.Opportunity {
	sentiment := s.sentiment.Index(ctx)

	var mu sync.Mutex
	found := make(map[string]*model.Opportunity)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, symbol := range universe {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			candles, err := s.market.GetOHLCV(gctx, symbol, s.historyBars)
			if err != nil {
				log.Debug().Err(err).Str("symbol", symbol).Msg("history unavailable, skipping")
				return nil
			}
			opp := s.scorer.Evaluate(symbol, candles, sentiment)
			if opp == nil {
				return nil
			}
			mu.Lock()
			found[symbol] = opp
			mu.Unlock()
			log.Info().
				Str("symbol", symbol).
				Int("score", opp.Score).
				Str("recommendation", string(opp.Recommendation)).
				Strs("reasons", opp.Reasons).
				Msg("buy opportunity")
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("universe", len(universe)).
		Int("opportunities", len(found)).
		Msg("scan complete")
	return found
}
