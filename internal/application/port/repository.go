package port

import (
	"context"
	"time"

	"stockpilot/internal/domain/model"
)

// Repository is the durable store behind the position and trade ledgers.
// Every mutation is atomic per call and persisted before the method returns.
type Repository interface {
	// Position ledger
	UpsertPosition(ctx context.Context, pos *model.Position) error
	GetPosition(ctx context.Context, symbol string) (*model.Position, error)
	DeletePosition(ctx context.Context, symbol string) error
	ListPositions(ctx context.Context) ([]*model.Position, error)

	// Trade ledger (append-only)
	AppendTrade(ctx context.Context, trade *model.Trade) error
	ListTrades(ctx context.Context, symbol string) ([]*model.Trade, error)

	Close() error
}

// CacheStore is a durable keyed byte store with per-entry expiry, used by
// the result cache. Implementations must treat missing and expired entries
// identically.
type CacheStore interface {
	CacheGet(ctx context.Context, key string) (payload []byte, ok bool, err error)
	CachePut(ctx context.Context, key string, payload []byte, ttl time.Duration) error
}
