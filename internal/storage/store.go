package storage

import (
	"context"
	"database/sql"
	"time"

	"copytrade-core/internal/domain"
)

// Store implements capability.Store against the sqlite schema in db.go.
type Store struct {
	db *DB
}

// NewStore wraps an opened DB as a capability.Store.
func NewStore(db *DB) *Store { return &Store{db: db} }

func (s *Store) AppendCopyTradeRecord(ctx context.Context, rec *domain.CopyTradeRecord) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO copy_trading_signals (insider, token, our_entry, our_exit, pnl, hold_seconds, result, exit_reason, created_at)
		VALUES (?, ?, ?, NULL, NULL, NULL, ?, ?, ?)`,
		rec.Insider, rec.Token, rec.OurEntry, string(rec.Result), rec.ExitReason, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) UpdateCopyTradeRecord(ctx context.Context, id int64, exit, pnl float64, holdSeconds int64, result domain.CopyTradeResult, reason string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE copy_trading_signals SET our_exit = ?, pnl = ?, hold_seconds = ?, result = ?, exit_reason = ?
		WHERE id = ?`,
		exit, pnl, holdSeconds, string(result), reason, id,
	)
	return err
}

func (s *Store) RecentCopyTrades(ctx context.Context, insider string, limit int) ([]*domain.CopyTradeRecord, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, insider, token, our_entry, our_exit, pnl, hold_seconds, result, exit_reason, created_at
		FROM copy_trading_signals WHERE insider = ? ORDER BY created_at DESC LIMIT ?`, insider, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCopyTradeRecords(rows)
}

func (s *Store) WalletTradeHistory(ctx context.Context, address string, since time.Time) ([]*domain.CopyTradeRecord, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, insider, token, our_entry, our_exit, pnl, hold_seconds, result, exit_reason, created_at
		FROM copy_trading_signals WHERE insider = ? AND created_at >= ? ORDER BY created_at ASC`,
		address, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCopyTradeRecords(rows)
}

func scanCopyTradeRecords(rows *sql.Rows) ([]*domain.CopyTradeRecord, error) {
	var out []*domain.CopyTradeRecord
	for rows.Next() {
		var rec domain.CopyTradeRecord
		var ourExit, pnl sql.NullFloat64
		var holdSeconds sql.NullInt64
		var result, reason string
		var createdAtUnix int64
		if err := rows.Scan(&rec.ID, &rec.Insider, &rec.Token, &rec.OurEntry, &ourExit, &pnl, &holdSeconds, &result, &reason, &createdAtUnix); err != nil {
			return nil, err
		}
		if ourExit.Valid {
			v := ourExit.Float64
			rec.OurExit = &v
		}
		if pnl.Valid {
			v := pnl.Float64
			rec.PnL = &v
		}
		if holdSeconds.Valid {
			v := holdSeconds.Int64
			rec.HoldSeconds = &v
		}
		rec.Result = domain.CopyTradeResult(result)
		rec.ExitReason = reason
		rec.CreatedAt = time.Unix(createdAtUnix, 0)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// HighPerformers implements the discovery pipeline's first query: wallets
// whose insider_wallets row already clears the win-rate/profit/trade
// thresholds.
func (s *Store) HighPerformers(ctx context.Context, minWinRate, minProfit float64, minTrades int) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT address FROM insider_wallets
		WHERE win_rate >= ? AND avg_profit_pct >= ? AND total_trades >= ?`,
		minWinRate, minProfit, minTrades)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddresses(rows)
}

// ConsistentEarlyEntrants implements the discovery pipeline's second
// query: wallets whose average entry delay and early-entry rate (share
// of trades below the delay bound) both clear their thresholds.
func (s *Store) ConsistentEarlyEntrants(ctx context.Context, maxAvgDelayMinutes, minEarlyEntryRate float64) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT address FROM wallet_trade_analysis
		GROUP BY address
		HAVING AVG(delay_seconds) / 60.0 <= ?
		   AND (CAST(SUM(CASE WHEN delay_seconds / 60.0 <= ? THEN 1 ELSE 0 END) AS REAL) / COUNT(*)) >= ?`,
		maxAvgDelayMinutes, maxAvgDelayMinutes, minEarlyEntryRate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddresses(rows)
}

// OutsizedProfitWallets implements the discovery pipeline's third query:
// wallets with at least one trade whose profit far exceeds the norm.
func (s *Store) OutsizedProfitWallets(ctx context.Context, minProfitPct float64) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT DISTINCT address FROM wallet_trade_analysis WHERE profit_pct >= ?`, minProfitPct)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAddresses(rows)
}

func scanAddresses(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// PendingFeedback derives confidence-adjustment recommendations from the
// copy_trading_performance rollup for wallets with at least 5 closed
// copies: a win rate below 0.4 or a negative cumulative PnL gets a
// negative adjustment and a Cooldown recommendation; a win rate of 0.8 or
// more gets a small positive nudge; anything else gets no adjustment.
func (s *Store) PendingFeedback(ctx context.Context) ([]domain.PerformanceFeedback, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT insider, wins, losses, cumulative_pnl FROM copy_trading_performance
		WHERE (wins + losses) >= 5`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PerformanceFeedback
	for rows.Next() {
		var insider string
		var wins, losses int
		var cumulativePnL float64
		if err := rows.Scan(&insider, &wins, &losses, &cumulativePnL); err != nil {
			return nil, err
		}
		total := wins + losses
		winRate := float64(wins) / float64(total)
		fb := domain.PerformanceFeedback{Address: insider}
		switch {
		case winRate < 0.4 || cumulativePnL < 0:
			fb.ScoreAdjustment = -0.15
			fb.StatusRecommendation = domain.StatusCooldown
		case winRate >= 0.8:
			fb.ScoreAdjustment = 0.05
			fb.StatusRecommendation = domain.StatusActive
		default:
			fb.ScoreAdjustment = 0
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *Store) RecordSessionStart(ctx context.Context, startingCapitalUSD float64) (int64, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO trading_sessions (started_at, starting_capital_usd, trades) VALUES (?, ?, 0)`,
		time.Now().Unix(), startingCapitalUSD)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) RecordSessionEnd(ctx context.Context, sessionID int64, endingCapitalUSD float64, trades int) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE trading_sessions SET ended_at = ?, ending_capital_usd = ?, trades = ? WHERE id = ?`,
		time.Now().Unix(), endingCapitalUSD, trades, sessionID)
	return err
}
