package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/svc"
)

// Repo is the default durable store: position ledger, append-only trade
// ledger and the result-cache table in one sqlite file.
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  entry_price REAL NOT NULL,
  quantity REAL NOT NULL,
  stop_loss_pct REAL NOT NULL,
  take_profit_pct REAL NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  ts_ms INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  price REAL NOT NULL,
  quantity REAL NOT NULL,
  reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts_ms);

CREATE TABLE IF NOT EXISTS kv_cache (
  key TEXT PRIMARY KEY,
  payload BLOB NOT NULL,
  expires_at INTEGER NOT NULL
);
`)
	return err
}

func (r *Repo) UpsertPosition(ctx context.Context, pos *model.Position) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO positions(symbol, entry_price, quantity, stop_loss_pct, take_profit_pct, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
  entry_price = excluded.entry_price,
  quantity = excluded.quantity,
  stop_loss_pct = excluded.stop_loss_pct,
  take_profit_pct = excluded.take_profit_pct,
  updated_at = excluded.updated_at`,
		pos.Symbol, pos.EntryPrice, pos.Quantity, pos.StopLossPct, pos.TakeProfitPct,
		pos.CreatedAt.UnixMilli(), pos.UpdatedAt.UnixMilli())
	return err
}

func (r *Repo) GetPosition(ctx context.Context, symbol string) (*model.Position, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT symbol, entry_price, quantity, stop_loss_pct, take_profit_pct, created_at, updated_at
FROM positions WHERE symbol = ?`, symbol)
	return scanPosition(row)
}

func (r *Repo) DeletePosition(ctx context.Context, symbol string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
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
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*model.Position, error) {
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

func (r *Repo) AppendTrade(ctx context.Context, trade *model.Trade) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO trades(id, ts_ms, symbol, side, price, quantity, reason)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.Timestamp.UnixMilli(), trade.Symbol, string(trade.Side),
		trade.Price, trade.Quantity, trade.Reason)
	return err
}

func (r *Repo) ListTrades(ctx context.Context, symbol string) ([]*model.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, ts_ms, symbol, side, price, quantity, reason
FROM trades WHERE symbol = ? ORDER BY ts_ms`, symbol)
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
		`SELECT payload, expires_at FROM kv_cache WHERE key = ?`, key).Scan(&payload, &expiresAt)
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
INSERT INTO kv_cache(key, payload, expires_at) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, payload, time.Now().Add(ttl).UnixMilli())
	return err
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.CacheStore = (*Repo)(nil)
)
