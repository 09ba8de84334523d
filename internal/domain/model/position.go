package model

import "time"

// Position is one open holding. EntryPrice is the volume-weighted average
// across all accumulations. A position with zero quantity is removed from
// the ledger, never kept as an empty row.
type Position struct {
	Symbol        string    `json:"symbol"`
	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"`
	StopLossPct   float64   `json:"stop_loss_pct"`
	TakeProfitPct float64   `json:"take_profit_pct"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UnrealizedPnLPct returns the percentage P&L against the entry price.
func (p *Position) UnrealizedPnLPct(currentPrice float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (currentPrice - p.EntryPrice) / p.EntryPrice * 100
}

// Accumulate folds an additional fill into the position, recomputing the
// weighted-average entry price.
func (p *Position) Accumulate(addPrice, addQty float64) {
	total := p.Quantity + addQty
	if total <= 0 {
		return
	}
	p.EntryPrice = (p.Quantity*p.EntryPrice + addQty*addPrice) / total
	p.Quantity = total
	p.UpdatedAt = time.Now()
}
