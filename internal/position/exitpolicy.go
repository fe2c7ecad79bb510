package position

import (
	"time"

	"copytrade-core/internal/domain"
)

// RiskConfig holds the thresholds the exit policy evaluates against. All
// keys map directly to the config file's `risk_management`/`strategy`
// sections.
type RiskConfig struct {
	StrategyTimeHorizon    time.Duration
	ForceExitHours         float64
	MaxLossUSD             float64
	MinHoldMinutes         float64
	TrailingStopPercent    float64
	FinalTargetMultiplier  float64
	TierMultipliers        [3]float64 // first, second, third tier, descending trigger order
	TierExitPercents       [3]float64
	MaxLossPerPositionPct  float64
}

// ExitKind classifies which rule in the policy fired.
type ExitKind string

const (
	ExitNone      ExitKind = ""
	ExitForce     ExitKind = "force_exit"
	ExitStopLoss  ExitKind = "usd_stop_loss"
	ExitTrailing  ExitKind = "trailing_stop"
	ExitFinal     ExitKind = "final_target"
	ExitTier      ExitKind = "tier_take_profit"
	ExitEmergency ExitKind = "emergency_exit"
)

// ExitDecision is the outcome of evaluating the exit policy against one
// position: either no action, or an exit of the given percentage.
type ExitDecision struct {
	Kind       ExitKind
	Percentage float64 // [0,1]
}

// Evaluate runs the ordered exit policy: force exit, USD stop-loss,
// take-profit ladder (trailing/final/tiered), emergency exit. The first
// rule that fires wins; later rules are not checked.
func Evaluate(p domain.Position, cfg RiskConfig, now time.Time) ExitDecision {
	ageHours := now.Sub(p.EntryTime).Hours()
	ageMinutes := now.Sub(p.EntryTime).Minutes()

	horizonHours := cfg.ForceExitHours
	if cfg.StrategyTimeHorizon.Hours() < horizonHours {
		horizonHours = cfg.StrategyTimeHorizon.Hours()
	}
	if horizonHours > 0 && ageHours >= horizonHours {
		return ExitDecision{Kind: ExitForce, Percentage: 1.0}
	}

	if cfg.MaxLossUSD > 0 && (p.EntryUSD-p.CurrentValueUSD) >= cfg.MaxLossUSD {
		return ExitDecision{Kind: ExitStopLoss, Percentage: 1.0}
	}

	if ageMinutes >= cfg.MinHoldMinutes {
		if d, ok := evaluateTakeProfitLadder(p, cfg); ok {
			return d
		}
	}

	if cfg.MaxLossPerPositionPct > 0 && p.EntryUSD > 0 {
		pnlPercent := (p.CurrentValueUSD/p.EntryUSD - 1) * 100
		if -pnlPercent >= cfg.MaxLossPerPositionPct {
			return ExitDecision{Kind: ExitEmergency, Percentage: 1.0}
		}
	}

	return ExitDecision{Kind: ExitNone}
}

func evaluateTakeProfitLadder(p domain.Position, cfg RiskConfig) (ExitDecision, bool) {
	if cfg.TrailingStopPercent > 0 && p.PeakPrice > 0 {
		peakValueUSD := p.PeakPrice / p.EntryPrice * p.EntryUSD
		drawdownPercent := 0.0
		if peakValueUSD > 0 {
			drawdownPercent = (peakValueUSD - p.CurrentValueUSD) / peakValueUSD * 100
		}
		if drawdownPercent >= cfg.TrailingStopPercent {
			return ExitDecision{Kind: ExitTrailing, Percentage: 1.0}, true
		}
	}

	if cfg.FinalTargetMultiplier > 0 && p.EntryPrice > 0 {
		multiplier := p.CurrentPrice / p.EntryPrice
		if multiplier >= cfg.FinalTargetMultiplier {
			return ExitDecision{Kind: ExitFinal, Percentage: 1.0}, true
		}
	}

	if p.EntryPrice > 0 {
		multiplier := p.CurrentPrice / p.EntryPrice
		// Tiers trigger in descending multiplier order: third (highest
		// bar) before second before first.
		for i := 2; i >= 0; i-- {
			tierMultiplier := cfg.TierMultipliers[i]
			tierPercent := cfg.TierExitPercents[i]
			if tierMultiplier > 0 && tierPercent > 0 && multiplier >= tierMultiplier {
				return ExitDecision{Kind: ExitTier, Percentage: tierPercent / 100}, true
			}
		}
	}

	return ExitDecision{}, false
}
