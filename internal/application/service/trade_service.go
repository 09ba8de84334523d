package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/svc"
)

// TradeService owns the append-only trade ledger and the performance
// figures derived from it.
type TradeService struct {
	repo port.Repository
}

func NewTradeService(repo port.Repository) *TradeService {
	return &TradeService{repo: repo}
}

// Record appends one immutable execution record. Called only after a
// confirmed fill.
func (s *TradeService) Record(ctx context.Context, symbol string, side model.Side, price, qty float64, reason string) (*model.Trade, error) {
	trade := &model.Trade{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Reason:    reason,
	}
	if err := s.repo.AppendTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("append trade %s %s: %w", side, symbol, err)
	}
	return trade, nil
}

// History returns the full trade history of one instrument, oldest-first.
func (s *TradeService) History(ctx context.Context, symbol string) ([]*model.Trade, error) {
	return s.repo.ListTrades(ctx, symbol)
}

// Performance derives the aggregate figures for one instrument from its
// trade history. currentPrice <= 0 values open holdings at zero.
// Returns ErrNoTrades for an instrument with no history.
func (s *TradeService) Performance(ctx context.Context, symbol string, currentPrice float64) (*model.Performance, error) {
	trades, err := s.repo.ListTrades(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, svc.ErrNoTrades
	}

	perf := &model.Performance{Symbol: symbol}
	for _, t := range trades {
		switch t.Side {
		case model.SideBuy:
			perf.TotalInvested += t.Notional()
			perf.CurrentHoldings += t.Quantity
		case model.SideSell:
			perf.TotalReturned += t.Notional()
			perf.CurrentHoldings -= t.Quantity
		}
	}
	if perf.CurrentHoldings > 0 && currentPrice > 0 {
		perf.CurrentValue = perf.CurrentHoldings * currentPrice
	}
	perf.TotalValue = perf.TotalReturned + perf.CurrentValue
	if perf.TotalInvested > 0 {
		perf.ROIPct = (perf.TotalValue - perf.TotalInvested) / perf.TotalInvested * 100
	}
	return perf, nil
}
