package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"copytrade-core/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAppendAndUpdateCopyTradeRecord(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id, err := store.AppendCopyTradeRecord(ctx, &domain.CopyTradeRecord{
		Insider:   "wallet1",
		Token:     "mintA",
		OurEntry:  1.5,
		Result:    domain.ResultPending,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	err = store.UpdateCopyTradeRecord(ctx, id, 2.0, 0.33, 120, domain.ResultWin, "take_profit")
	require.NoError(t, err)

	recs, err := store.RecentCopyTrades(ctx, "wallet1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.ResultWin, recs[0].Result)
	require.NotNil(t, recs[0].OurExit)
	require.InDelta(t, 2.0, *recs[0].OurExit, 1e-9)
	require.NotNil(t, recs[0].PnL)
	require.InDelta(t, 0.33, *recs[0].PnL, 1e-9)
	require.NotNil(t, recs[0].HoldSeconds)
	require.Equal(t, int64(120), *recs[0].HoldSeconds)
}

func TestWalletTradeHistoryFiltersBySince(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)

	_, err := store.AppendCopyTradeRecord(ctx, &domain.CopyTradeRecord{Insider: "w", Token: "old", OurEntry: 1, Result: domain.ResultWin, CreatedAt: old})
	require.NoError(t, err)
	_, err = store.AppendCopyTradeRecord(ctx, &domain.CopyTradeRecord{Insider: "w", Token: "new", OurEntry: 1, Result: domain.ResultWin, CreatedAt: recent})
	require.NoError(t, err)

	history, err := store.WalletTradeHistory(ctx, "w", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "new", history[0].Token)
}

func TestHighPerformersAppliesAllThreeThresholds(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := db.conn.ExecContext(ctx, `INSERT INTO insider_wallets
		(address, confidence, win_rate, avg_profit_pct, early_entry_score, total_trades, profitable_trades, last_trade_ts, first_seen_ts, recent_activity, status)
		VALUES ('good', 0.8, 0.75, 0.5, 90, 10, 8, 0, 0, 0.9, 'active')`)
	require.NoError(t, err)
	_, err = db.conn.ExecContext(ctx, `INSERT INTO insider_wallets
		(address, confidence, win_rate, avg_profit_pct, early_entry_score, total_trades, profitable_trades, last_trade_ts, first_seen_ts, recent_activity, status)
		VALUES ('low_trades', 0.8, 0.9, 0.9, 90, 2, 2, 0, 0, 0.9, 'active')`)
	require.NoError(t, err)

	addrs, err := store.HighPerformers(ctx, 0.70, 0.40, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, addrs)
}

func TestOutsizedProfitWalletsDedupes(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := db.conn.ExecContext(ctx, `INSERT INTO wallet_trade_analysis (address, token_mint, delay_seconds, profit_pct, win, observed_at)
			VALUES ('whale', 'mint', 10, 2.5, 1, 0)`)
		require.NoError(t, err)
	}
	addrs, err := store.OutsizedProfitWallets(ctx, 2.0)
	require.NoError(t, err)
	require.Equal(t, []string{"whale"}, addrs)
}

func TestPendingFeedbackRecommendsCooldownForLosers(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	_, err := db.conn.ExecContext(ctx, `INSERT INTO copy_trading_performance (insider, total_copies, wins, losses, cumulative_pnl, last_updated)
		VALUES ('loser', 10, 1, 9, -5.0, 0)`)
	require.NoError(t, err)
	_, err = db.conn.ExecContext(ctx, `INSERT INTO copy_trading_performance (insider, total_copies, wins, losses, cumulative_pnl, last_updated)
		VALUES ('winner', 10, 9, 1, 5.0, 0)`)
	require.NoError(t, err)

	fb, err := store.PendingFeedback(ctx)
	require.NoError(t, err)
	require.Len(t, fb, 2)

	byAddr := map[string]domain.PerformanceFeedback{}
	for _, f := range fb {
		byAddr[f.Address] = f
	}
	require.Equal(t, domain.StatusCooldown, byAddr["loser"].StatusRecommendation)
	require.Less(t, byAddr["loser"].ScoreAdjustment, 0.0)
	require.Equal(t, domain.StatusActive, byAddr["winner"].StatusRecommendation)
	require.Greater(t, byAddr["winner"].ScoreAdjustment, 0.0)
}

func TestSessionStartAndEndRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	id, err := store.RecordSessionStart(ctx, 1000)
	require.NoError(t, err)
	require.NoError(t, store.RecordSessionEnd(ctx, id, 1200, 14))

	var endingCapital float64
	var trades int
	row := db.conn.QueryRowContext(ctx, `SELECT ending_capital_usd, trades FROM trading_sessions WHERE id = ?`, id)
	require.NoError(t, row.Scan(&endingCapital, &trades))
	require.InDelta(t, 1200, endingCapital, 1e-9)
	require.Equal(t, 14, trades)
}
