// Package journal persists closed trades in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"supertrend-bot/internal/interfaces"
	"supertrend-bot/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    symbol_token TEXT NOT NULL,
    side TEXT NOT NULL,
    qty INTEGER NOT NULL,
    entry_price REAL NOT NULL,
    exit_price REAL NOT NULL,
    pnl REAL NOT NULL,
    reason TEXT NOT NULL,
    opened_at TEXT NOT NULL,
    closed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_trades_token ON closed_trades(symbol_token, closed_at);
`

// Journal is a TradeJournal backed by a SQLite file.
type Journal struct {
	db *sql.DB
}

var _ interfaces.TradeJournal = (*Journal)(nil)

// Open opens (and creates if needed) the journal at path and applies the
// schema. ":memory:" gives a private in-memory journal.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps one :memory: database

	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordTrade inserts a closed trade. Recording the same trade id twice is a no-op.
func (j *Journal) RecordTrade(ctx context.Context, t types.ClosedTrade) error {
	if t.ID == "" {
		return errors.New("trade id is required")
	}
	_, err := j.db.ExecContext(ctx, `
INSERT OR IGNORE INTO closed_trades
    (id, session_id, symbol, symbol_token, side, qty, entry_price, exit_price, pnl, reason, opened_at, closed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Symbol, t.SymbolToken, string(t.Side), t.Qty,
		t.EntryPrice, t.ExitPrice, t.PnL, t.Reason,
		formatTime(t.OpenedAt), formatTime(t.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListTrades returns the newest trades for a symbol token, newest first.
// A limit of 0 or less returns every trade.
func (j *Journal) ListTrades(ctx context.Context, symbolToken string, limit int) ([]types.ClosedTrade, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, session_id, symbol, symbol_token, side, qty, entry_price, exit_price, pnl, reason, opened_at, closed_at
FROM closed_trades
WHERE symbol_token = ?
ORDER BY closed_at DESC, rowid DESC
LIMIT ?`, symbolToken, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []types.ClosedTrade
	for rows.Next() {
		var t types.ClosedTrade
		var side, opened, closed string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Symbol, &t.SymbolToken, &side, &t.Qty,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.Reason, &opened, &closed); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = types.Side(side)
		t.OpenedAt = parseTime(opened)
		t.ClosedAt = parseTime(closed)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Times are stored as UTC RFC3339 so they sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
