package paper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
)

// QuoteFunc resolves the current price used to fill market sells and to
// value open holdings.
type QuoteFunc func(ctx context.Context, symbol string) (float64, error)

type holding struct {
	qty      float64
	avgPrice float64
	openedAt time.Time
}

type fill struct {
	ts     time.Time
	symbol string
	side   string
	price  float64
	qty    float64
	profit float64 // realized, sells only
}

// Summary aggregates the simulated account for reporting.
type Summary struct {
	InitialBalance float64
	CashBalance    float64
	PortfolioValue float64
	TotalReturnPct float64
	TotalTrades    int
	BuyTrades      int
	SellTrades     int
	WinTrades      int
	LossTrades     int
	WinRatePct     float64
}

// Simulator is an in-memory substitute for the live execution gateway. It
// maintains a simulated cash balance and position book and mirrors the
// gateway contract exactly, so the orchestrator cannot tell them apart.
type Simulator struct {
	mu       sync.Mutex
	initial  float64
	cash     float64
	holdings map[string]*holding
	fills    []fill
	quote    QuoteFunc
}

func New(startingBalance float64, quote QuoteFunc) *Simulator {
	return &Simulator{
		initial:  startingBalance,
		cash:     startingBalance,
		holdings: make(map[string]*holding),
		quote:    quote,
	}
}

// Restore seeds the book from positions persisted by an earlier
// generation, debiting their cost from cash so the rebuilt simulator can
// still exit them. Call before trading starts.
func (s *Simulator) Restore(positions []*model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pos := range positions {
		if pos.Quantity <= 0 {
			continue
		}
		s.holdings[pos.Symbol] = &holding{
			qty:      pos.Quantity,
			avgPrice: pos.EntryPrice,
			openedAt: pos.CreatedAt,
		}
		s.cash -= pos.EntryPrice * pos.Quantity
	}
	if s.cash < 0 {
		s.cash = 0
	}
}

// PlaceLimitBuy debits cash and updates the simulated book. Returns false
// without any state change when the cost exceeds available cash.
func (s *Simulator) PlaceLimitBuy(ctx context.Context, symbol string, price, qty float64) bool {
	if price <= 0 || qty <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cost := price * qty
	if cost > s.cash {
		log.Warn().
			Str("symbol", symbol).
			Float64("cost", cost).
			Float64("cash", s.cash).
			Msg("paper buy rejected: insufficient cash")
		return false
	}

	s.cash -= cost
	if h, ok := s.holdings[symbol]; ok {
		total := h.qty + qty
		h.avgPrice = (h.qty*h.avgPrice + qty*price) / total
		h.qty = total
	} else {
		s.holdings[symbol] = &holding{qty: qty, avgPrice: price, openedAt: time.Now()}
	}
	s.fills = append(s.fills, fill{ts: time.Now(), symbol: symbol, side: "buy", price: price, qty: qty})

	log.Info().
		Str("symbol", symbol).
		Float64("price", price).
		Float64("qty", qty).
		Float64("cash", s.cash).
		Msg("paper buy filled")
	return true
}

// PlaceMarketSell fills at the current quote. Returns false without any
// state change when the held quantity is insufficient or no quote exists.
func (s *Simulator) PlaceMarketSell(ctx context.Context, symbol string, qty float64) bool {
	if qty <= 0 {
		return false
	}
	price, err := s.quote(ctx, symbol)
	if err != nil || price <= 0 {
		log.Warn().Err(err).Str("symbol", symbol).Msg("paper sell rejected: no quote")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holdings[symbol]
	if !ok || h.qty < qty {
		log.Warn().
			Str("symbol", symbol).
			Float64("qty", qty).
			Msg("paper sell rejected: insufficient holdings")
		return false
	}

	profit := (price - h.avgPrice) * qty
	s.cash += price * qty
	h.qty -= qty
	if h.qty <= 0 {
		delete(s.holdings, symbol)
	}
	s.fills = append(s.fills, fill{ts: time.Now(), symbol: symbol, side: "sell", price: price, qty: qty, profit: profit})

	log.Info().
		Str("symbol", symbol).
		Float64("price", price).
		Float64("qty", qty).
		Float64("profit", profit).
		Msg("paper sell filled")
	return true
}

// Balance returns the simulated cash balance.
func (s *Simulator) Balance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash, nil
}

// HoldingQuantity returns the simulated book quantity for an instrument.
func (s *Simulator) HoldingQuantity(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.holdings[symbol]; ok {
		return h.qty
	}
	return 0
}

// PortfolioValue is cash plus every holding at current quotes. Holdings
// without a quote are valued at zero for this pass.
func (s *Simulator) PortfolioValue(ctx context.Context) float64 {
	s.mu.Lock()
	symbols := make(map[string]float64, len(s.holdings))
	for sym, h := range s.holdings {
		symbols[sym] = h.qty
	}
	total := s.cash
	s.mu.Unlock()

	for sym, qty := range symbols {
		price, err := s.quote(ctx, sym)
		if err != nil || price <= 0 {
			continue
		}
		total += price * qty
	}
	return total
}

// Summarize computes the performance summary used for periodic reporting.
func (s *Simulator) Summarize(ctx context.Context) Summary {
	value := s.PortfolioValue(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{
		InitialBalance: s.initial,
		CashBalance:    s.cash,
		PortfolioValue: value,
		TotalTrades:    len(s.fills),
	}
	for _, f := range s.fills {
		switch f.side {
		case "buy":
			sum.BuyTrades++
		case "sell":
			sum.SellTrades++
			if f.profit > 0 {
				sum.WinTrades++
			} else if f.profit < 0 {
				sum.LossTrades++
			}
		}
	}
	if s.initial > 0 {
		sum.TotalReturnPct = (value - s.initial) / s.initial * 100
	}
	if sum.SellTrades > 0 {
		sum.WinRatePct = float64(sum.WinTrades) / float64(sum.SellTrades) * 100
	}
	return sum
}

var _ port.ExecutionGateway = (*Simulator)(nil)
