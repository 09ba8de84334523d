package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/svc"
)

type mockRepository struct {
	positions map[string]*model.Position
	trades    []*model.Trade
	failNext  error
}

func newMockRepository() *mockRepository {
	return &mockRepository{positions: make(map[string]*model.Position)}
}

func (m *mockRepository) UpsertPosition(ctx context.Context, pos *model.Position) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	cp := *pos
	m.positions[pos.Symbol] = &cp
	return nil
}

func (m *mockRepository) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	pos, ok := m.positions[symbol]
	if !ok {
		return nil, svc.ErrNoPosition
	}
	cp := *pos
	return &cp, nil
}

func (m *mockRepository) DeletePosition(ctx context.Context, symbol string) error {
	delete(m.positions, symbol)
	return nil
}

func (m *mockRepository) ListPositions(ctx context.Context) ([]*model.Position, error) {
	out := make([]*model.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		cp := *pos
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *mockRepository) AppendTrade(ctx context.Context, trade *model.Trade) error {
	cp := *trade
	m.trades = append(m.trades, &cp)
	return nil
}

func (m *mockRepository) ListTrades(ctx context.Context, symbol string) ([]*model.Trade, error) {
	var out []*model.Trade
	for _, t := range m.trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepository) Close() error { return nil }

func fixedPrice(price float64) PriceFunc {
	return func(ctx context.Context, symbol string) (float64, error) { return price, nil }
}

func TestOpenPersistsPosition(t *testing.T) {
	repo := newMockRepository()
	s := NewPositionService(repo, 10)
	ctx := context.Background()

	pos, err := s.Open(ctx, "AAPL", 150, 10, 5, 10)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if pos.EntryPrice != 150 || pos.Quantity != 10 {
		t.Errorf("position = %+v", pos)
	}
	if _, ok := repo.positions["AAPL"]; !ok {
		t.Error("position not persisted")
	}
}

func TestOpenRejectsNonPositiveQuantity(t *testing.T) {
	s := NewPositionService(newMockRepository(), 10)
	if _, err := s.Open(context.Background(), "AAPL", 150, 0, 5, 10); err == nil {
		t.Error("expected error for zero quantity")
	}
}

func TestAccumulateWeightedAverage(t *testing.T) {
	repo := newMockRepository()
	s := NewPositionService(repo, 10)
	ctx := context.Background()

	// Two sequential buys: 10 @ 100 then 10 @ 120 -> avg 110, qty 20.
	if _, err := s.Open(ctx, "MSFT", 100, 10, 5, 10); err != nil {
		t.Fatal(err)
	}
	pos, err := s.Accumulate(ctx, "MSFT", 120, 10)
	if err != nil {
		t.Fatalf("Accumulate failed: %v", err)
	}
	if math.Abs(pos.EntryPrice-110) > 1e-9 || pos.Quantity != 20 {
		t.Errorf("avg=%v qty=%v, want 110/20", pos.EntryPrice, pos.Quantity)
	}
}

func TestAccumulateSequenceInvariant(t *testing.T) {
	repo := newMockRepository()
	s := NewPositionService(repo, 10)
	ctx := context.Background()

	fills := []struct{ price, qty float64 }{
		{100, 10}, {90, 5}, {110, 20}, {95.5, 7}, {130, 3},
	}

	if _, err := s.Open(ctx, "ROKU", fills[0].price, fills[0].qty, 5, 10); err != nil {
		t.Fatal(err)
	}
	var notional, qty float64
	notional = fills[0].price * fills[0].qty
	qty = fills[0].qty
	for _, f := range fills[1:] {
		pos, err := s.Accumulate(ctx, "ROKU", f.price, f.qty)
		if err != nil {
			t.Fatal(err)
		}
		notional += f.price * f.qty
		qty += f.qty
		want := notional / qty
		if math.Abs(pos.EntryPrice-want) > 1e-9 {
			t.Fatalf("after fill %+v: avg=%v, want %v", f, pos.EntryPrice, want)
		}
		if pos.Quantity != qty {
			t.Fatalf("after fill %+v: qty=%v, want %v", f, pos.Quantity, qty)
		}
	}
}

func TestAccumulateUnknownSymbol(t *testing.T) {
	s := NewPositionService(newMockRepository(), 10)
	if _, err := s.Accumulate(context.Background(), "NOPE", 100, 1); !errors.Is(err, svc.ErrNoPosition) {
		t.Errorf("err = %v, want ErrNoPosition", err)
	}
}

func TestCloseRemovesAndIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	s := NewPositionService(repo, 10)
	ctx := context.Background()

	if _, err := s.Open(ctx, "AAPL", 150, 10, 5, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx, "AAPL"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Re-closing an absent position is a no-op.
	if err := s.Close(ctx, "AAPL"); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if len(repo.positions) != 0 {
		t.Error("position not removed")
	}
}

func TestReviewClassification(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		price float64
		stop  float64
		take  float64
		dca   float64
		want  ReviewAction
	}{
		{"stop loss at threshold", 100, 95, 5, 10, 8, ActionStopLoss},
		{"stop loss below threshold", 100, 94, 5, 10, 8, ActionStopLoss},
		{"just above stop loss", 100, 95.01, 5, 10, 8, ActionNone},
		{"take profit at threshold", 100, 110, 5, 10, 8, ActionTakeProfit},
		{"take profit above threshold", 100, 115, 5, 10, 8, ActionTakeProfit},
		{"dca when drawdown within stop", 100, 92, 10, 20, 8, ActionCostAverage},
		{"stop loss wins over dca", 100, 89, 10, 20, 8, ActionStopLoss},
		{"flat price no action", 100, 100, 5, 10, 8, ActionNone},
		{"dca disabled", 100, 92, 10, 20, 0, ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepository()
			s := NewPositionService(repo, tt.dca)
			ctx := context.Background()
			if _, err := s.Open(ctx, "AAPL", tt.entry, 10, tt.stop, tt.take); err != nil {
				t.Fatal(err)
			}

			results, err := s.Review(ctx, fixedPrice(tt.price))
			if err != nil {
				t.Fatalf("Review failed: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].Action != tt.want {
				t.Errorf("action = %v, want %v", results[0].Action, tt.want)
			}
		})
	}
}

// Exactly one classification applies for any price input.
func TestReviewExactlyOneClassification(t *testing.T) {
	repo := newMockRepository()
	s := NewPositionService(repo, 8)
	ctx := context.Background()
	if _, err := s.Open(ctx, "AAPL", 100, 10, 5, 10); err != nil {
		t.Fatal(err)
	}

	for price := 50.0; price <= 150.0; price += 0.25 {
		results, err := s.Review(ctx, fixedPrice(price))
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 {
			t.Fatalf("price %v: %d results", price, len(results))
		}
		action := results[0].Action
		pnl := results[0].PnLPct
		switch {
		case pnl <= -5:
			if action != ActionStopLoss {
				t.Fatalf("price %v pnl %v: action %v, want stop loss", price, pnl, action)
			}
		case pnl >= 10:
			if action != ActionTakeProfit {
				t.Fatalf("price %v pnl %v: action %v, want take profit", price, pnl, action)
			}
		case -pnl >= 8:
			t.Fatalf("price %v: dca band unreachable with 5%% stop", price)
		default:
			if action != ActionNone {
				t.Fatalf("price %v pnl %v: action %v, want none", price, pnl, action)
			}
		}
	}
}

func TestReviewSkipsUnpricedPositions(t *testing.T) {
	repo := newMockRepository()
	s := NewPositionService(repo, 8)
	ctx := context.Background()
	if _, err := s.Open(ctx, "AAPL", 100, 10, 5, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open(ctx, "MSFT", 300, 5, 5, 10); err != nil {
		t.Fatal(err)
	}

	priceFn := func(ctx context.Context, symbol string) (float64, error) {
		if symbol == "AAPL" {
			return 0, svc.ErrNoQuote
		}
		return 310, nil
	}
	results, err := s.Review(ctx, priceFn)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Position.Symbol != "MSFT" {
		t.Errorf("expected only MSFT reviewed, got %d results", len(results))
	}
}

func TestHeldSet(t *testing.T) {
	repo := newMockRepository()
	s := NewPositionService(repo, 8)
	ctx := context.Background()
	for _, sym := range []string{"AAPL", "MSFT"} {
		if _, err := s.Open(ctx, sym, 100, 1, 5, 10); err != nil {
			t.Fatal(err)
		}
	}

	held, err := s.Held(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 2 {
		t.Fatalf("held = %v", held)
	}
	if _, ok := held["AAPL"]; !ok {
		t.Error("AAPL should be held")
	}
}
