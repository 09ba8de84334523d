package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	appcontainer "stockpilot/internal/application/container"
	"stockpilot/internal/application/usecase/trader"
	domain "stockpilot/internal/domain/service"
	"stockpilot/internal/infrastructure/broker/paper"
	"stockpilot/internal/infrastructure/config"
	"stockpilot/internal/infrastructure/container"
	"stockpilot/internal/infrastructure/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger.Setup(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes := config.Watch(ctx, *configPath, 5*time.Second)

	// Each config change tears the running generation down and builds a
	// fresh one from the new file.
	for ctx.Err() == nil {
		err := runGeneration(ctx, *configPath, changes)
		switch {
		case err == nil:
			log.Info().Msg("configuration changed, rebuilding")
		case errors.Is(err, context.Canceled):
			log.Info().Msg("shutting down")
			return
		default:
			log.Error().Err(err).Msg("generation failed, waiting for config change")
			select {
			case <-ctx.Done():
				return
			case <-changes:
				log.Info().Msg("configuration changed, retrying")
			}
		}
	}
}

// runGeneration builds one full stack from the config file and runs the
// trading loop until shutdown or a config change. A nil return means the
// config changed and the caller should rebuild.
func runGeneration(ctx context.Context, configPath string, changes <-chan struct{}) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	infra, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if feed := infra.StreamFeed(); feed != nil {
		go feed.Run(genCtx)
	}

	scorer := domain.NewScorer(domain.ScoringConfig{
		RSIPeriod:       cfg.Indicators.RSIPeriod,
		BBPeriod:        cfg.Indicators.BBPeriod,
		BBStdDevs:       cfg.Indicators.BBStdDevs,
		MACDFast:        cfg.Indicators.MACDFast,
		MACDSlow:        cfg.Indicators.MACDSlow,
		MACDSignal:      cfg.Indicators.MACDSignal,
		VolumeSMAPeriod: cfg.Indicators.VolumeSMAPeriod,
		BaseRatio:       cfg.Trading.BaseInvestmentRatio,
	})

	app := appcontainer.New(appcontainer.Params{
		Repo:          infra.Repository(),
		Market:        infra.MarketData(),
		Sentiment:     infra.Sentiment(),
		Scorer:        scorer,
		DcaTriggerPct: cfg.Trading.DcaTriggerPct,
		HistoryBars:   cfg.Indicators.HistoryBars,
		ScanWorkers:   10,
	})

	var reporter trader.AccountReporter
	if sim := infra.Simulator(); sim != nil {
		reporter = paperReporter{sim: sim}
	}

	svc := trader.NewService(trader.ServiceDeps{
		Positions: app.PositionService(),
		Trades:    app.TradeService(),
		Scanner:   app.ScanService(),
		Scorer:    scorer,
		Market:    infra.MarketData(),
		Broker:    infra.Broker(),
		Notifier:  infra.Notifier(),
		Reporter:  reporter,
		Universe:  cfg.Universe.List,
		Hours:     trader.NewWindow(cfg.Hours.Start, cfg.Hours.End, cfg.Hours.Weekdays),
		Tuning: trader.Tuning{
			MaxPositions:   cfg.Trading.MaxPositions,
			MaxCandidates:  cfg.Trading.MaxCandidates,
			ScoreThreshold: cfg.Trading.ScoreThreshold,
			StopLossPct:    cfg.Trading.StopLossPct,
			TakeProfitPct:  cfg.Trading.TakeProfitPct,
			DcaTriggerPct:  cfg.Trading.DcaTriggerPct,
			MinCash:        cfg.Trading.MinCash,
			CycleInterval:  time.Duration(cfg.App.CycleSeconds) * time.Second,
			ReportInterval: time.Duration(cfg.App.ReportEveryMin) * time.Minute,
		},
	})

	log.Info().
		Str("config", configPath).
		Bool("paper", cfg.App.PaperTrading).
		Int("universe", len(cfg.Universe.List)).
		Msg("stockpilot started")

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(genCtx) }()

	select {
	case <-changes:
		cancel()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

type paperReporter struct {
	sim *paper.Simulator
}

func (r paperReporter) Summary(ctx context.Context) string {
	s := r.sim.Summarize(ctx)
	return fmt.Sprintf(
		"paper account: value %.0f (%.2f%%), cash %.0f, trades %d (buy %d / sell %d), win rate %.1f%%",
		s.PortfolioValue, s.TotalReturnPct, s.CashBalance,
		s.TotalTrades, s.BuyTrades, s.SellTrades, s.WinRatePct,
	)
}
