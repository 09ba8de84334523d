package model

import "time"

// Side of an execution.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one immutable execution record. Appended after a confirmed fill,
// never mutated or removed.
type Trade struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Reason    string    `json:"reason"`
}

// Notional is the traded value of the fill.
func (t *Trade) Notional() float64 { return t.Price * t.Quantity }

// Performance aggregates the trade history of one instrument.
type Performance struct {
	Symbol          string  `json:"symbol"`
	TotalInvested   float64 `json:"total_invested"`
	TotalReturned   float64 `json:"total_returned"`
	CurrentHoldings float64 `json:"current_holdings"`
	CurrentValue    float64 `json:"current_value"`
	TotalValue      float64 `json:"total_value"`
	ROIPct          float64 `json:"roi_pct"`
}
