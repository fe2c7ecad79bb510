package aggregates

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"copytrade-core/internal/capability"
	"copytrade-core/internal/domain"
)

// ExportCopyTradesToCSV writes an insider's recent copy-trade records to
// w in CSV form: read via store, written via encoding/csv rather than a
// hand-rolled writer.
func ExportCopyTradesToCSV(ctx context.Context, store capability.Store, insider string, limit int, w io.Writer) error {
	records, err := store.RecentCopyTrades(ctx, insider, limit)
	if err != nil {
		return fmt.Errorf("aggregates: export copy trades: %w", err)
	}

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"id", "insider", "token", "our_entry", "our_exit", "pnl", "hold_seconds", "result", "exit_reason", "created_at"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		if err := cw.Write(recordToRow(r)); err != nil {
			return err
		}
	}
	return cw.Error()
}

func recordToRow(r *domain.CopyTradeRecord) []string {
	ourExit := ""
	if r.OurExit != nil {
		ourExit = strconv.FormatFloat(*r.OurExit, 'f', -1, 64)
	}
	pnl := ""
	if r.PnL != nil {
		pnl = strconv.FormatFloat(*r.PnL, 'f', -1, 64)
	}
	holdSeconds := ""
	if r.HoldSeconds != nil {
		holdSeconds = strconv.FormatInt(*r.HoldSeconds, 10)
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Insider,
		r.Token,
		strconv.FormatFloat(r.OurEntry, 'f', -1, 64),
		ourExit,
		pnl,
		holdSeconds,
		string(r.Result),
		r.ExitReason,
		r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ExportSnapshotsToCSV writes a set of computed performance snapshots to
// w in CSV form, one row per period bucket.
func ExportSnapshotsToCSV(snapshots []Snapshot, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"period", "period_start", "period_end", "win_rate", "profit_factor", "sharpe", "sortino", "calmar", "max_drawdown", "max_drawdown_seconds", "consecutive_wins", "consecutive_losses"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range snapshots {
		row := []string{
			s.Period,
			s.PeriodStart.Format("2006-01-02T15:04:05Z07:00"),
			s.PeriodEnd.Format("2006-01-02T15:04:05Z07:00"),
			strconv.FormatFloat(s.WinRate, 'f', -1, 64),
			strconv.FormatFloat(s.ProfitFactor, 'f', -1, 64),
			strconv.FormatFloat(s.Sharpe, 'f', -1, 64),
			strconv.FormatFloat(s.Sortino, 'f', -1, 64),
			strconv.FormatFloat(s.Calmar, 'f', -1, 64),
			strconv.FormatFloat(s.MaxDrawdown, 'f', -1, 64),
			strconv.FormatInt(s.MaxDrawdownSeconds, 10),
			strconv.Itoa(s.ConsecutiveWins),
			strconv.Itoa(s.ConsecutiveLosses),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}
