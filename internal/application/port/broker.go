package port

import "context"

// ExecutionGateway places orders. A false return means "not filled", not an
// error; callers must not assume partial state changed. The paper simulator
// and the live broker adapter implement the same contract so the
// orchestrator is agnostic to which is wired in.
type ExecutionGateway interface {
	PlaceLimitBuy(ctx context.Context, symbol string, price, qty float64) bool
	PlaceMarketSell(ctx context.Context, symbol string, qty float64) bool
	// Balance returns the available cash balance.
	Balance(ctx context.Context) (float64, error)
}

// Notifier delivers trade-relevant messages to an external channel.
// Fire-and-forget: failures are logged and swallowed, never block trading.
type Notifier interface {
	Notify(message string)
}
