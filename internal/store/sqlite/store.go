// Package sqlite persists trades and daily summaries to a local SQLite
// database. A single connection with WAL journaling keeps writes ordered
// without contention; all prices are stored in paise.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/krishnalakamsani/nifty-5sec-superstrend-scalping/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	trade_id     TEXT NOT NULL UNIQUE,
	index_name   TEXT NOT NULL,
	option_type  TEXT NOT NULL,
	strike       INTEGER NOT NULL,
	expiry       TEXT NOT NULL,
	qty          INTEGER NOT NULL,
	entry_time   TEXT NOT NULL,
	entry_price  INTEGER NOT NULL,
	exit_time    TEXT,
	exit_price   INTEGER,
	pnl          INTEGER,
	exit_reason  TEXT,
	mode         TEXT NOT NULL,
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);

CREATE TABLE IF NOT EXISTS daily_stats (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	date                 TEXT NOT NULL UNIQUE,
	total_trades         INTEGER NOT NULL,
	total_pnl            INTEGER NOT NULL,
	max_drawdown         INTEGER NOT NULL,
	daily_stop_triggered INTEGER NOT NULL,
	mode                 TEXT NOT NULL
);
`

// TradeRecord is one row of the trades table, returned by Trades.
type TradeRecord struct {
	TradeID    string  `json:"trade_id"`
	IndexName  string  `json:"index_name"`
	OptionType string  `json:"option_type"`
	Strike     int     `json:"strike"`
	Expiry     string  `json:"expiry"`
	Qty        int64   `json:"qty"`
	EntryTime  string  `json:"entry_time"`
	EntryPrice int64   `json:"entry_price"`
	ExitTime   *string `json:"exit_time"`
	ExitPrice  *int64  `json:"exit_price"`
	PnL        *int64  `json:"pnl"`
	ExitReason *string `json:"exit_reason"`
	Mode       string  `json:"mode"`
}

// Store writes trades and daily summaries to SQLite.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordEntry inserts a row for a freshly opened position.
func (s *Store) RecordEntry(pos model.Position, cfg model.TradingConfig, mode model.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO trades (trade_id, index_name, option_type, strike, expiry, qty, entry_time, entry_price, mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.TradeID, pos.IndexName, string(pos.OptionType), pos.Strike, pos.Expiry,
		pos.Qty, pos.EntryTime.Format(time.RFC3339), pos.EntryPrice, string(mode),
	)
	if err != nil {
		return fmt.Errorf("record entry %s: %w", pos.TradeID, err)
	}
	return nil
}

// RecordExit fills in the exit columns of an existing trade row.
func (s *Store) RecordExit(tradeID string, exitTime time.Time, exitPrice, pnl int64, reason model.ExitReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE trades SET exit_time = ?, exit_price = ?, pnl = ?, exit_reason = ?
		WHERE trade_id = ?`,
		exitTime.Format(time.RFC3339), exitPrice, pnl, string(reason), tradeID,
	)
	if err != nil {
		return fmt.Errorf("record exit %s: %w", tradeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record exit %s: no such trade", tradeID)
	}
	return nil
}

// SaveDailySummary upserts the per-day aggregate row.
func (s *Store) SaveDailySummary(day string, trades int, pnl, maxDrawdown int64, stopTriggered bool, mode model.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stop := 0
	if stopTriggered {
		stop = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO daily_stats (date, total_trades, total_pnl, max_drawdown, daily_stop_triggered, mode)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_trades = excluded.total_trades,
			total_pnl = excluded.total_pnl,
			max_drawdown = excluded.max_drawdown,
			daily_stop_triggered = excluded.daily_stop_triggered,
			mode = excluded.mode`,
		day, trades, pnl, maxDrawdown, stop, string(mode),
	)
	if err != nil {
		return fmt.Errorf("save daily summary %s: %w", day, err)
	}
	return nil
}

// Trades returns the most recent trades, newest first.
func (s *Store) Trades(limit int) ([]TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT trade_id, index_name, option_type, strike, expiry, qty,
		       entry_time, entry_price, exit_time, exit_price, pnl, exit_reason, mode
		FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var tr TradeRecord
		if err := rows.Scan(&tr.TradeID, &tr.IndexName, &tr.OptionType, &tr.Strike, &tr.Expiry,
			&tr.Qty, &tr.EntryTime, &tr.EntryPrice, &tr.ExitTime, &tr.ExitPrice,
			&tr.PnL, &tr.ExitReason, &tr.Mode); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// DailySummary is one row of daily_stats.
type DailySummary struct {
	Date          string `json:"date"`
	TotalTrades   int    `json:"total_trades"`
	TotalPnL      int64  `json:"total_pnl"`
	MaxDrawdown   int64  `json:"max_drawdown"`
	StopTriggered bool   `json:"daily_stop_triggered"`
	Mode          string `json:"mode"`
}

// Summaries returns the most recent daily summaries, newest first.
func (s *Store) Summaries(limit int) ([]DailySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.Query(`
		SELECT date, total_trades, total_pnl, max_drawdown, daily_stop_triggered, mode
		FROM daily_stats ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query daily_stats: %w", err)
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		var ds DailySummary
		var stop int
		if err := rows.Scan(&ds.Date, &ds.TotalTrades, &ds.TotalPnL, &ds.MaxDrawdown, &stop, &ds.Mode); err != nil {
			return nil, fmt.Errorf("scan daily summary: %w", err)
		}
		ds.StopTriggered = stop != 0
		out = append(out, ds)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
