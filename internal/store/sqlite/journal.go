// Package sqlite keeps the closed-trade audit journal.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"forex-autopilot/internal/portfolio"
)

// Journal persists closed trades to SQLite for analysis and audit. The
// JSON snapshot stays the ledger's source of truth.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS closed_trades (
		trade_id     TEXT PRIMARY KEY,
		symbol       TEXT NOT NULL,
		direction    TEXT NOT NULL,
		entry_price  REAL NOT NULL,
		exit_price   REAL NOT NULL,
		stop_loss    REAL NOT NULL,
		target_price REAL NOT NULL,
		lot_size     REAL NOT NULL,
		score        REAL NOT NULL,
		pnl          REAL NOT NULL,
		status       TEXT NOT NULL,
		entry_time   DATETIME NOT NULL,
		exit_time    DATETIME NOT NULL,
		recorded_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_closed_symbol ON closed_trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_closed_exit_time ON closed_trades(exit_time);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("trade journal opened", "path", path)
	return &Journal{db: db}, nil
}

// DB returns the underlying handle for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Record writes a closed trade. Recording the same trade twice overwrites
// the earlier row.
func (j *Journal) Record(ctx context.Context, t portfolio.Trade) error {
	if !t.Status.Closed() || t.ExitTime == nil || t.ExitPrice == nil {
		return fmt.Errorf("journal: trade %s is not closed", t.ID)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO closed_trades
		 (trade_id, symbol, direction, entry_price, exit_price, stop_loss, target_price,
		  lot_size, score, pnl, status, entry_time, exit_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Symbol,
		string(t.Direction),
		t.EntryPrice,
		*t.ExitPrice,
		t.StopLoss,
		t.TargetPrice,
		t.LotSize,
		t.Score,
		t.PnL,
		string(t.Status),
		t.EntryTime.UTC().Format(time.RFC3339Nano),
		t.ExitTime.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal insert %s: %w", t.ID, err)
	}
	return nil
}

// Entry is a journal row.
type Entry struct {
	TradeID    string  `json:"trade_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	LotSize    float64 `json:"lot_size"`
	PnL        float64 `json:"pnl"`
	Status     string  `json:"status"`
	ExitTime   string  `json:"exit_time"`
}

// Recent returns the last limit closed trades, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT trade_id, symbol, direction, entry_price, exit_price, lot_size, pnl, status, exit_time
		 FROM closed_trades ORDER BY exit_time DESC, trade_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TradeID, &e.Symbol, &e.Direction, &e.EntryPrice, &e.ExitPrice,
			&e.LotSize, &e.PnL, &e.Status, &e.ExitTime); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SymbolStats is the realized performance of one symbol.
type SymbolStats struct {
	Symbol   string  `json:"symbol"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	TotalPnL float64 `json:"total_pnl"`
}

// BySymbol aggregates the journal per symbol, best total first.
func (j *Journal) BySymbol(ctx context.Context) ([]SymbolStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT symbol, COUNT(*), SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), ROUND(SUM(pnl), 2)
		 FROM closed_trades GROUP BY symbol ORDER BY SUM(pnl) DESC, symbol`)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []SymbolStats
	for rows.Next() {
		var s SymbolStats
		if err := rows.Scan(&s.Symbol, &s.Trades, &s.Wins, &s.TotalPnL); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
