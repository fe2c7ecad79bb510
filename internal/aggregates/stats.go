// Package aggregates computes performance-snapshot statistics derived
// from finalized copy-trade records: profit factor, Sharpe/Sortino,
// Calmar, max drawdown and its duration, and consecutive win/loss
// streaks, following the split between raw trade records and a derived
// snapshot struct.
package aggregates

import (
	"math"
	"time"
)

// Trade is one closed copy-trade's return, the unit stats.go operates
// over. PnL is a fractional return (0.25 == +25%), ClosedAt is the exit
// timestamp used to order the series for drawdown/streak walks.
type Trade struct {
	PnL      float64
	ClosedAt time.Time
}

// Snapshot is a period-bucketed performance rollup, one per
// performance_snapshots row.
type Snapshot struct {
	Period             string
	PeriodStart        time.Time
	PeriodEnd          time.Time
	WinRate            float64
	ProfitFactor       float64
	Sharpe             float64
	Sortino            float64
	Calmar             float64
	MaxDrawdown        float64
	MaxDrawdownSeconds int64
	ConsecutiveWins    int
	ConsecutiveLosses  int
}

// ProfitFactor is Σwins / Σ|losses|. Returns +Inf when there are wins and
// no losses, and 0 when there are no wins at all.
func ProfitFactor(trades []Trade) float64 {
	var wins, losses float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins += t.PnL
		} else if t.PnL < 0 {
			losses += -t.PnL
		}
	}
	if losses == 0 {
		if wins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return wins / losses
}

// WinRate is the fraction of trades with positive PnL.
func WinRate(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// Sharpe is mean(returns)/stddev(returns). Undefined (returns 0) when
// stddev is 0, since the ratio has no meaningful value for a constant
// series.
func Sharpe(trades []Trade) float64 {
	returns := returnsOf(trades)
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd
}

// Sortino is mean(returns)/downside_stddev(returns), where the downside
// deviation is computed over negative returns only.
func Sortino(trades []Trade) float64 {
	returns := returnsOf(trades)
	m := mean(returns)

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dsd := stddev(downside, 0)
	if dsd == 0 {
		return 0
	}
	return m / dsd
}

func returnsOf(trades []Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.PnL
	}
	return out
}

// MaxDrawdown walks cumulative PnL maintaining a running peak, returning
// the largest peak-to-trough decline and the elapsed time from the peak
// to the trough that set it.
func MaxDrawdown(trades []Trade) (drawdown float64, duration time.Duration) {
	if len(trades) == 0 {
		return 0, 0
	}
	var cumulative, peak float64
	var peakAt time.Time
	var worstDrop float64
	var worstDuration time.Duration

	for i, t := range trades {
		cumulative += t.PnL
		if i == 0 || cumulative > peak {
			peak = cumulative
			peakAt = t.ClosedAt
		}
		drop := peak - cumulative
		if drop > worstDrop {
			worstDrop = drop
			worstDuration = t.ClosedAt.Sub(peakAt)
		}
	}
	return worstDrop, worstDuration
}

// Calmar is the annualized mean return divided by max drawdown. Returns
// 0 when drawdown is 0 (no meaningful ratio for a series with no
// decline).
func Calmar(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	drawdown, _ := MaxDrawdown(trades)
	if drawdown == 0 {
		return 0
	}
	m := mean(returnsOf(trades))
	const tradingDaysPerYear = 365.0
	annualized := m * tradingDaysPerYear
	return annualized / drawdown
}

// ConsecutiveStreaks returns the longest consecutive win streak and the
// longest consecutive loss streak across the series, in the order given
// (callers pass trades sorted by ClosedAt ascending).
func ConsecutiveStreaks(trades []Trade) (maxWinStreak, maxLossStreak int) {
	var curWin, curLoss int
	for _, t := range trades {
		if t.PnL > 0 {
			curWin++
			curLoss = 0
		} else if t.PnL < 0 {
			curLoss++
			curWin = 0
		} else {
			curWin, curLoss = 0, 0
		}
		if curWin > maxWinStreak {
			maxWinStreak = curWin
		}
		if curLoss > maxLossStreak {
			maxLossStreak = curLoss
		}
	}
	return maxWinStreak, maxLossStreak
}

// BuildSnapshot computes a full Snapshot over trades assumed to already
// be sorted by ClosedAt ascending and bounded to [start, end).
func BuildSnapshot(period string, start, end time.Time, trades []Trade) Snapshot {
	drawdown, drawdownDur := MaxDrawdown(trades)
	wins, losses := ConsecutiveStreaks(trades)
	return Snapshot{
		Period:             period,
		PeriodStart:        start,
		PeriodEnd:          end,
		WinRate:            WinRate(trades),
		ProfitFactor:       ProfitFactor(trades),
		Sharpe:             Sharpe(trades),
		Sortino:            Sortino(trades),
		Calmar:             Calmar(trades),
		MaxDrawdown:        drawdown,
		MaxDrawdownSeconds: int64(drawdownDur.Seconds()),
		ConsecutiveWins:    wins,
		ConsecutiveLosses:  losses,
	}
}
