package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/svc"
)

// PriceFunc resolves the current price of an instrument.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

// ReviewAction classifies one open position during a review pass.
// Exactly one action applies per position: stop-loss and take-profit are
// evaluated before cost-averaging and are mutually exclusive with it.
type ReviewAction int

const (
	ActionNone ReviewAction = iota
	ActionStopLoss
	ActionTakeProfit
	ActionCostAverage
)

func (a ReviewAction) String() string {
	switch a {
	case ActionStopLoss:
		return "stop_loss"
	case ActionTakeProfit:
		return "take_profit"
	case ActionCostAverage:
		return "cost_average"
	default:
		return "none"
	}
}

// ReviewResult pairs a position with its classification at current prices.
type ReviewResult struct {
	Position     *model.Position
	Action       ReviewAction
	CurrentPrice float64
	PnLPct       float64
}

// PositionService owns the position ledger. Every mutation persists
// synchronously before returning, so a crash never loses a completed fill.
type PositionService struct {
	repo          port.Repository
	dcaTriggerPct float64
}

func NewPositionService(repo port.Repository, dcaTriggerPct float64) *PositionService {
	return &PositionService{repo: repo, dcaTriggerPct: dcaTriggerPct}
}

// Open records a new position after a confirmed entry fill.
func (s *PositionService) Open(ctx context.Context, symbol string, price, qty, stopLossPct, takeProfitPct float64) (*model.Position, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("open %s: quantity must be positive, got %v", symbol, qty)
	}
	now := time.Now()
	pos := &model.Position{
		Symbol:        symbol,
		EntryPrice:    price,
		Quantity:      qty,
		StopLossPct:   stopLossPct,
		TakeProfitPct: takeProfitPct,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.UpsertPosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("persist position %s: %w", symbol, err)
	}
	return pos, nil
}

// Accumulate folds an additional fill into an existing position,
// recomputing the weighted-average entry price.
func (s *PositionService) Accumulate(ctx context.Context, symbol string, addPrice, addQty float64) (*model.Position, error) {
	if addQty <= 0 {
		return nil, fmt.Errorf("accumulate %s: quantity must be positive, got %v", symbol, addQty)
	}
	pos, err := s.repo.GetPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	pos.Accumulate(addPrice, addQty)
	if err := s.repo.UpsertPosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("persist position %s: %w", symbol, err)
	}
	return pos, nil
}

// Close removes a position after a full exit fill. Closing an absent
// position is a no-op, which keeps review idempotent across restarts.
func (s *PositionService) Close(ctx context.Context, symbol string) error {
	return s.repo.DeletePosition(ctx, symbol)
}

// All returns every open position.
func (s *PositionService) All(ctx context.Context) ([]*model.Position, error) {
	return s.repo.ListPositions(ctx)
}

// Held returns the set of instruments currently open, used to prevent
// re-entering a held instrument and to bound concurrent holdings.
func (s *PositionService) Held(ctx context.Context) (map[string]struct{}, error) {
	positions, err := s.repo.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(positions))
	for _, pos := range positions {
		held[pos.Symbol] = struct{}{}
	}
	return held, nil
}

// Review classifies every open position against current prices. A position
// whose price cannot be resolved is skipped for this pass, not escalated.
func (s *PositionService) Review(ctx context.Context, priceFn PriceFunc) ([]ReviewResult, error) {
	positions, err := s.repo.ListPositions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ReviewResult, 0, len(positions))
	for _, pos := range positions {
		price, err := priceFn(ctx, pos.Symbol)
		if err != nil || price <= 0 {
			if err == nil {
				err = svc.ErrNoQuote
			}
			if !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("price unavailable, skipping review")
			}
			continue
		}
		pnl := pos.UnrealizedPnLPct(price)
		results = append(results, ReviewResult{
			Position:     pos,
			Action:       s.classify(pos, pnl),
			CurrentPrice: price,
			PnLPct:       pnl,
		})
	}
	return results, nil
}

func (s *PositionService) classify(pos *model.Position, pnlPct float64) ReviewAction {
	switch {
	case pnlPct <= -pos.StopLossPct:
		return ActionStopLoss
	case pnlPct >= pos.TakeProfitPct:
		return ActionTakeProfit
	case s.dcaTriggerPct > 0 && -pnlPct >= s.dcaTriggerPct:
		return ActionCostAverage
	default:
		return ActionNone
	}
}
