// Package storage implements the persistent aggregates layer's relational
// backing store: insider wallet rollups, copy-trade records, performance
// snapshots, and session bookkeeping, on a pure-Go sqlite driver.
package storage

import (
	"database/sql"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection and owns schema creation.
type DB struct {
	conn *sql.DB
}

// Open creates (or attaches to) the sqlite database at path, applying
// WAL/synchronous/busy-timeout pragmas suited to write-heavy workloads
// under a single writer.
func Open(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := createSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("storage: database initialized")
	return &DB{conn: conn}, nil
}

func createSchema(conn *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS insider_wallets (
		address TEXT PRIMARY KEY,
		confidence REAL NOT NULL,
		win_rate REAL NOT NULL,
		avg_profit_pct REAL NOT NULL,
		early_entry_score REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		profitable_trades INTEGER NOT NULL,
		last_trade_ts INTEGER NOT NULL,
		first_seen_ts INTEGER NOT NULL,
		recent_activity REAL NOT NULL,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallet_trade_analysis (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL,
		token_mint TEXT NOT NULL,
		delay_seconds INTEGER NOT NULL,
		profit_pct REAL NOT NULL,
		win INTEGER NOT NULL,
		observed_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS copy_trading_signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		insider TEXT NOT NULL,
		token TEXT NOT NULL,
		our_entry REAL NOT NULL,
		our_exit REAL,
		pnl REAL,
		hold_seconds INTEGER,
		result TEXT NOT NULL,
		exit_reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS copy_trading_performance (
		insider TEXT PRIMARY KEY,
		total_copies INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		cumulative_pnl REAL NOT NULL DEFAULT 0,
		last_updated INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS performance_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		period TEXT NOT NULL,
		period_start INTEGER NOT NULL,
		period_end INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		profit_factor REAL NOT NULL,
		sharpe REAL NOT NULL,
		sortino REAL NOT NULL,
		calmar REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		max_drawdown_seconds INTEGER NOT NULL,
		consecutive_wins INTEGER NOT NULL,
		consecutive_losses INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signal_performance (
		signal_type TEXT PRIMARY KEY,
		total_signals INTEGER NOT NULL DEFAULT 0,
		correct_signals INTEGER NOT NULL DEFAULT 0,
		confidence_accuracy REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS trading_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		starting_capital_usd REAL NOT NULL,
		ending_capital_usd REAL,
		trades INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS token_insider_summary (
		token_mint TEXT PRIMARY KEY,
		insider_count INTEGER NOT NULL DEFAULT 0,
		max_confidence REAL NOT NULL DEFAULT 0,
		last_insider_activity INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_copy_signals_insider ON copy_trading_signals(insider);
	CREATE INDEX IF NOT EXISTS idx_copy_signals_created ON copy_trading_signals(created_at);
	CREATE INDEX IF NOT EXISTS idx_wallet_analysis_address ON wallet_trade_analysis(address);
	`
	_, err := conn.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }
