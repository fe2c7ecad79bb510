package insider

import (
	"math"
	"time"

	"copytrade-core/internal/domain"
)

// Qualification thresholds a wallet's trade history must clear before the
// scorer computes a confidence score at all.
const (
	qualifyMinWinRate    = 0.70
	qualifyMinAvgProfit  = 0.40
	qualifyMinTotalTrades = 5
)

// recentActivityDecayDays is the exponential-decay constant for the
// recent-activity score's weighting window.
const recentActivityDecayDays = 30.0

// recencyDecayDays is the confidence formula's recency decay constant:
// the recency factor falls by 1/e for every 7 days since the last trade.
const recencyDecayDays = 7.0

// TradeOutcome is one evidence trade feeding the scorer: a copy (or
// observed insider) trade's profit and timing, used to compute
// early-entry and recent-activity scores.
type TradeOutcome struct {
	ProfitPct        float64
	Win              bool
	DelayAfterLaunch time.Duration
	OccurredAt       time.Time
}

// Qualifies reports whether a wallet's aggregate trade history clears the
// qualification bar the scorer requires before computing a score.
func Qualifies(winRate, avgProfit float64, totalTrades int) bool {
	return winRate >= qualifyMinWinRate && avgProfit >= qualifyMinAvgProfit && totalTrades >= qualifyMinTotalTrades
}

// EarlyEntryScore scores a single trade's speed relative to token launch:
// 100/(minutes+1), so an instant entry scores 100 and later entries decay
// toward 0.
func EarlyEntryScore(delay time.Duration) float64 {
	minutes := delay.Minutes()
	if minutes < 0 {
		minutes = 0
	}
	return 100.0 / (minutes + 1)
}

// RecentActivityScore computes an exponential-decay-weighted mean of
// win(1)/loss(0) outcomes over the given trades, weighting more recent
// trades higher using a 30-day decay constant.
func RecentActivityScore(trades []TradeOutcome, now time.Time) float64 {
	if len(trades) == 0 {
		return 0
	}
	var weightedSum, weightTotal float64
	for _, tr := range trades {
		daysAgo := now.Sub(tr.OccurredAt).Hours() / 24
		if daysAgo < 0 {
			daysAgo = 0
		}
		weight := math.Exp(-daysAgo / recentActivityDecayDays)
		outcome := 0.0
		if tr.Win {
			outcome = 1.0
		}
		weightedSum += weight * outcome
		weightTotal += weight
	}
	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}

// VolumeScore normalizes a wallet's trade count against a saturation
// point, used as the confidence formula's volume term.
func VolumeScore(totalTrades int) float64 {
	const saturation = 50.0
	return clamp(float64(totalTrades)/saturation, 0, 1)
}

// Confidence computes the scorer's base*recency confidence formula,
// clipped to [0,1].
//
//	base    = 0.4*win_rate + 0.3*avg_profit + 0.2*(early_entry/100) + 0.1*volume_score
//	recency = exp(-days_since_last_trade / 7)
//	confidence = min(1, base*recency)
func Confidence(winRate, avgProfit, earlyEntryScore, volumeScore, daysSinceLastTrade float64) float64 {
	if daysSinceLastTrade < 0 {
		daysSinceLastTrade = 0
	}
	base := 0.4*winRate + 0.3*avgProfit + 0.2*(earlyEntryScore/100) + 0.1*volumeScore
	recency := math.Exp(-daysSinceLastTrade / recencyDecayDays)
	confidence := base * recency
	return clamp(confidence, 0, 1)
}

// DeriveStatus classifies a wallet's lifecycle status from its computed
// scores. Blacklisted status is sticky and is not derived here — only
// explicit bad-performance events transition a wallet into it (see
// Detector.applyPendingFeedback).
func DeriveStatus(confidence, winRate, recentActivity float64) domain.InsiderStatus {
	switch {
	case confidence >= 0.80 && winRate >= 0.80:
		return domain.StatusActive
	case confidence >= 0.70:
		return domain.StatusMonitoring
	case recentActivity < 0.30:
		return domain.StatusCooldown
	default:
		return domain.StatusMonitoring
	}
}
