package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/svc"
)

// Repo is the postgres-backed ledger store, interchangeable with the sqlite
// driver through the Repository port.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  symbol TEXT PRIMARY KEY,
  entry_price DOUBLE PRECISION NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  stop_loss_pct DOUBLE PRECISION NOT NULL,
  take_profit_pct DOUBLE PRECISION NOT NULL,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts_ms);

CREATE TABLE IF NOT EXISTS kv_cache (
  key TEXT PRIMARY KEY,
  payload BYTEA NOT NULL,
  expires_at BIGINT NOT NULL
);
`)
	return err
}

func (r *Repo) UpsertPosition(ctx context.Context, pos *model.Position) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO positions(symbol, entry_price, quantity, stop_loss_pct, take_profit_pct, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT(symbol) DO UPDATE SET
  entry_price = EXCLUDED.entry_price,
  quantity = EXCLUDED.quantity,
  stop_loss_pct = EXCLUDED.stop_loss_pct,
  take_profit_pct = EXCLUDED.take_profit_pct,
  updated_at = EXCLUDED.updated_at`,
		pos.Symbol, pos.EntryPrice, pos.Quantity, pos.StopLossPct, pos.TakeProfitPct,
		pos.CreatedAt.UnixMilli(), pos.UpdatedAt.UnixMilli())
	return err
}

func (r *Repo) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT symbol, entry_price, quantity, stop_loss_pct, take_profit_pct, created_at, updated_at
FROM positions WHERE symbol = $1`, symbol)

	var pos model.Position
	var createdMs, updatedMs int64
	err := row.Scan(&pos.Symbol, &pos.EntryPrice, &pos.Quantity,
		&pos.StopLossPct, &pos.TakeProfitPct, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svc.ErrNoPosition
	}
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}
	pos.CreatedAt = time.UnixMilli(createdMs)
	pos.UpdatedAt = time.UnixMilli(updatedMs)
	return &pos, nil
}

func (r *Repo) DeletePosition(ctx context.Context, symbol string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = $1`, symbol)
	return err
}

func (r *Repo) ListPositions(ctx context.Context) ([]*model.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT symbol, entry_price, quantity, stop_loss_pct, take_profit_pct, created_at, updated_at
FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Position
	for rows.Next() {
		var pos model.Position
		var createdMs, updatedMs int64
		if err := rows.Scan(&pos.Symbol, &pos.EntryPrice, &pos.Quantity,
			&pos.StopLossPct, &pos.TakeProfitPct, &createdMs, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		pos.CreatedAt = time.UnixMilli(createdMs)
		pos.UpdatedAt = time.UnixMilli(updatedMs)
		out = append(out, &pos)
	}
	return out, rows.Err()
}

func (r *Repo) AppendTrade(ctx context.Context, trade *model.Trade) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO trades(id, ts_ms, symbol, side, price, quantity, reason)
VALUES($1, $2, $3, $4, $5, $6, $7)`,
		trade.ID, trade.Timestamp.UnixMilli(), trade.Symbol, string(trade.Side),
		trade.Price, trade.Quantity, trade.Reason)
	return err
}

func (r *Repo) ListTrades(ctx context.Context, symbol string) ([]*model.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, ts_ms, symbol, side, price, quantity, reason
FROM trades WHERE symbol = $1 ORDER BY ts_ms`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Trade
	for rows.Next() {
		var t model.Trade
		var tsMs int64
		var side string
		if err := rows.Scan(&t.ID, &tsMs, &t.Symbol, &side, &t.Price, &t.Quantity, &t.Reason); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Timestamp = time.UnixMilli(tsMs)
		t.Side = model.Side(side)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *Repo) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	var payload []byte
	var expiresAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM kv_cache WHERE key = $1`, key).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Now().UnixMilli() >= expiresAt {
		return nil, false, nil
	}
	return payload, true, nil
}

func (r *Repo) CachePut(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO kv_cache(key, payload, expires_at) VALUES($1, $2, $3)
ON CONFLICT(key) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		key, payload, time.Now().Add(ttl).UnixMilli())
	return err
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.CacheStore = (*Repo)(nil)
)
