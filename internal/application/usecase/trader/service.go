package trader

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	"stockpilot/internal/application/service"
	"stockpilot/internal/domain/model"
	domain "stockpilot/internal/domain/service"
)

// AccountReporter supplies a periodic account summary line. Paper sessions
// wire the simulator here; live sessions run without one and fall back to
// the ledger-based portfolio report.
type AccountReporter interface {
	Summary(ctx context.Context) string
}

// Tuning carries the per-cycle trading knobs.
type Tuning struct {
	MaxPositions   int
	MaxCandidates  int
	ScoreThreshold int
	StopLossPct    float64
	TakeProfitPct  float64
	DcaTriggerPct  float64
	MinCash        float64
	CycleInterval  time.Duration
	ReportInterval time.Duration
}

type ServiceDeps struct {
	Positions *service.PositionService
	Trades    *service.TradeService
	Scanner   *service.ScanService
	Scorer    *domain.Scorer
	Market    port.MarketData
	Broker    port.ExecutionGateway
	Notifier  port.Notifier
	Reporter  AccountReporter
	Universe  []string
	Hours     Window
	Tuning    Tuning
}

// Service runs the trading loop: review open positions, scan for entries,
// execute at most one entry per cycle, report on schedule.
type Service struct {
	deps       ServiceDeps
	lastReport time.Time
	now        func() time.Time
	idleWait   time.Duration
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		deps:     deps,
		now:      time.Now,
		idleWait: 10 * time.Minute,
	}
}

func (s *Service) Run(ctx context.Context) error {
	log.Info().
		Int("universe", len(s.deps.Universe)).
		Int("max_positions", s.deps.Tuning.MaxPositions).
		Dur("cycle", s.deps.Tuning.CycleInterval).
		Msg("trading loop started")

	for {
		if !s.deps.Hours.Contains(s.now()) {
			log.Info().Msg("outside trading hours, idling")
			if err := sleep(ctx, s.idleWait); err != nil {
				return err
			}
			continue
		}

		s.runCycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := sleep(ctx, s.deps.Tuning.CycleInterval); err != nil {
			return err
		}
	}
}

// runCycle executes one full pass. Per-symbol failures are logged and
// skipped; only context cancellation stops the pass.
func (s *Service) runCycle(ctx context.Context) {
	s.reviewPositions(ctx)
	if ctx.Err() != nil {
		return
	}
	s.scanAndEnter(ctx)
	if ctx.Err() != nil {
		return
	}
	s.maybeReport(ctx)
}

func (s *Service) reviewPositions(ctx context.Context) {
	results, err := s.deps.Positions.Review(ctx, s.deps.Market.GetPrice)
	if err != nil {
		log.Error().Err(err).Msg("position review failed")
		return
	}

	for _, r := range results {
		if ctx.Err() != nil {
			return
		}
		switch r.Action {
		case service.ActionStopLoss, service.ActionTakeProfit:
			s.exitPosition(ctx, r)
		case service.ActionCostAverage:
			s.costAverage(ctx, r)
		}
	}
}

func (s *Service) exitPosition(ctx context.Context, r service.ReviewResult) {
	pos := r.Position
	if !s.deps.Broker.PlaceMarketSell(ctx, pos.Symbol, pos.Quantity) {
		log.Warn().Str("symbol", pos.Symbol).Str("action", r.Action.String()).Msg("exit order not filled")
		return
	}
	if _, err := s.deps.Trades.Record(ctx, pos.Symbol, model.SideSell, r.CurrentPrice, pos.Quantity, r.Action.String()); err != nil {
		log.Error().Err(err).Str("symbol", pos.Symbol).Msg("exit trade not recorded")
	}
	if err := s.deps.Positions.Close(ctx, pos.Symbol); err != nil {
		log.Error().Err(err).Str("symbol", pos.Symbol).Msg("position close not persisted")
	}
	log.Info().
		Str("symbol", pos.Symbol).
		Str("action", r.Action.String()).
		Float64("price", r.CurrentPrice).
		Float64("pnl_pct", r.PnLPct).
		Msg("position exited")
	s.deps.Notifier.Notify(fmt.Sprintf("%s %s at %.2f (%.2f%%)", r.Action, pos.Symbol, r.CurrentPrice, r.PnLPct))
}

func (s *Service) costAverage(ctx context.Context, r service.ReviewResult) {
	pos := r.Position
	balance, err := s.deps.Broker.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("balance unavailable, skipping cost average")
		return
	}
	budget := balance * s.deps.Tuning.DcaTriggerPct / 100
	qty := math.Floor(budget / r.CurrentPrice)
	if qty < 1 || balance-qty*r.CurrentPrice < s.deps.Tuning.MinCash {
		return
	}
	if !s.deps.Broker.PlaceLimitBuy(ctx, pos.Symbol, r.CurrentPrice, qty) {
		log.Warn().Str("symbol", pos.Symbol).Msg("cost average order not filled")
		return
	}
	if _, err := s.deps.Trades.Record(ctx, pos.Symbol, model.SideBuy, r.CurrentPrice, qty, service.ActionCostAverage.String()); err != nil {
		log.Error().Err(err).Str("symbol", pos.Symbol).Msg("cost average trade not recorded")
	}
	if _, err := s.deps.Positions.Accumulate(ctx, pos.Symbol, r.CurrentPrice, qty); err != nil {
		log.Error().Err(err).Str("symbol", pos.Symbol).Msg("cost average not folded into position")
	}
	log.Info().
		Str("symbol", pos.Symbol).
		Float64("price", r.CurrentPrice).
		Float64("qty", qty).
		Float64("pnl_pct", r.PnLPct).
		Msg("position averaged down")
	s.deps.Notifier.Notify(fmt.Sprintf("cost average %s: %v at %.2f", pos.Symbol, qty, r.CurrentPrice))
}

func (s *Service) scanAndEnter(ctx context.Context) {
	held, err := s.deps.Positions.Held(ctx)
	if err != nil {
		log.Error().Err(err).Msg("position lookup failed, skipping scan")
		return
	}
	if len(held) >= s.deps.Tuning.MaxPositions {
		log.Debug().Int("held", len(held)).Msg("at position ceiling, skipping scan")
		return
	}

	opportunities := s.deps.Scanner.Scan(ctx, s.deps.Universe)
	candidates := rankCandidates(opportunities, held, s.deps.Tuning.ScoreThreshold, s.deps.Tuning.MaxCandidates)
	if len(candidates) == 0 {
		return
	}
	s.executeEntry(ctx, candidates)
}

// rankCandidates orders qualifying opportunities best first, drops held
// instruments and scores below the threshold, and caps the list.
func rankCandidates(opportunities map[string]*model.Opportunity, held map[string]struct{}, threshold, max int) []*model.Opportunity {
	out := make([]*model.Opportunity, 0, len(opportunities))
	for _, opp := range opportunities {
		if _, ok := held[opp.Symbol]; ok {
			continue
		}
		if opp.Score < threshold {
			continue
		}
		out = append(out, opp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// executeEntry walks the ranked candidates and stops at the first fill.
func (s *Service) executeEntry(ctx context.Context, candidates []*model.Opportunity) {
	for _, opp := range candidates {
		if ctx.Err() != nil {
			return
		}
		balance, err := s.deps.Broker.Balance(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("balance unavailable, skipping entries")
			return
		}
		if balance < s.deps.Tuning.MinCash {
			log.Info().Float64("balance", balance).Msg("below cash floor, skipping entries")
			return
		}

		ratio := s.deps.Scorer.SizeInvestment(opp.Price, opp.PredictedPrice, opp.Sentiment)
		qty := math.Floor(balance * ratio / opp.Price)
		if qty < 1 {
			log.Debug().Str("symbol", opp.Symbol).Float64("ratio", ratio).Msg("budget below one unit, skipping")
			continue
		}

		if !s.deps.Broker.PlaceLimitBuy(ctx, opp.Symbol, opp.Price, qty) {
			log.Warn().Str("symbol", opp.Symbol).Msg("entry order not filled")
			continue
		}
		reason := fmt.Sprintf("entry score %d", opp.Score)
		if _, err := s.deps.Trades.Record(ctx, opp.Symbol, model.SideBuy, opp.Price, qty, reason); err != nil {
			log.Error().Err(err).Str("symbol", opp.Symbol).Msg("entry trade not recorded")
		}
		if _, err := s.deps.Positions.Open(ctx, opp.Symbol, opp.Price, qty, s.deps.Tuning.StopLossPct, s.deps.Tuning.TakeProfitPct); err != nil {
			log.Error().Err(err).Str("symbol", opp.Symbol).Msg("position open not persisted")
		}
		log.Info().
			Str("symbol", opp.Symbol).
			Int("score", opp.Score).
			Float64("price", opp.Price).
			Float64("qty", qty).
			Msg("position opened")
		s.deps.Notifier.Notify(fmt.Sprintf("buy %s: %v at %.2f (score %d)", opp.Symbol, qty, opp.Price, opp.Score))
		return
	}
}

func (s *Service) maybeReport(ctx context.Context) {
	if s.deps.Tuning.ReportInterval <= 0 {
		return
	}
	now := s.now()
	if !s.lastReport.IsZero() && now.Sub(s.lastReport) < s.deps.Tuning.ReportInterval {
		return
	}
	s.lastReport = now

	if s.deps.Reporter != nil {
		summary := s.deps.Reporter.Summary(ctx)
		log.Info().Msg(summary)
		s.deps.Notifier.Notify(summary)
		return
	}
	s.reportPortfolio(ctx)
}

func (s *Service) reportPortfolio(ctx context.Context) {
	positions, err := s.deps.Positions.All(ctx)
	if err != nil {
		log.Error().Err(err).Msg("portfolio report failed")
		return
	}

	cash, err := s.deps.Broker.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("balance unavailable for portfolio report")
		cash = 0
	}

	holdingsValue := 0.0
	for _, pos := range positions {
		price, err := s.deps.Market.GetPrice(ctx, pos.Symbol)
		if err != nil || price <= 0 {
			continue
		}
		holdingsValue += price * pos.Quantity
		perf, err := s.deps.Trades.Performance(ctx, pos.Symbol, price)
		if err != nil {
			continue
		}
		log.Info().
			Str("symbol", pos.Symbol).
			Float64("qty", pos.Quantity).
			Float64("entry", pos.EntryPrice).
			Float64("price", price).
			Float64("pnl_pct", pos.UnrealizedPnLPct(price)).
			Float64("roi_pct", perf.ROIPct).
			Msg("portfolio")
	}

	summary := fmt.Sprintf("portfolio: %d positions, holdings %.0f, cash %.0f, total %.0f",
		len(positions), holdingsValue, cash, cash+holdingsValue)
	log.Info().Msg(summary)
	s.deps.Notifier.Notify(summary)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
