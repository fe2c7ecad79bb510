package insider

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-core/internal/capability"
	"copytrade-core/internal/domain"
)

// rescoreInterval is how often the detector re-reads trade history and
// recomputes scores, absent an on-demand trigger.
const rescoreInterval = 5 * time.Minute

// historyWindow bounds how far back wallet trade history is pulled for
// each rescoring pass.
const historyWindow = 30 * 24 * time.Hour

// Discovery pipeline thresholds for the three candidate queries.
const (
	discoverMinWinRate         = 0.70
	discoverMinProfit          = 0.40
	discoverMinTrades          = 5
	discoverMaxAvgDelayMinutes = 10.0
	discoverMinEarlyEntryRate  = 0.60
	discoverMinOutsizedProfit  = 1.00
)

// Detector runs offline relative to the hot path: periodically (and on
// demand) it reads recent wallet trade history, recomputes confidence and
// status, discovers new candidates, and pushes the results into the
// cache in one batch.
type Detector struct {
	store capability.Store
	cache *Cache
}

// NewDetector binds a detector to its store and the cache it feeds.
func NewDetector(store capability.Store, cache *Cache) *Detector {
	return &Detector{store: store, cache: cache}
}

// Run drives periodic rescoring until ctx is canceled.
func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(rescoreInterval)
	defer ticker.Stop()

	d.RescoreOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RescoreOnce(ctx)
		}
	}
}

// RescoreOnce runs one full pass: discover candidates, recompute scores
// for every known and newly-discovered wallet, apply pending feedback,
// and push the batch into the cache.
func (d *Detector) RescoreOnce(ctx context.Context) {
	candidates, err := d.discover(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("insider: discovery pipeline failed")
		return
	}

	now := time.Now()
	since := now.Add(-historyWindow)
	var batch []*domain.InsiderWallet

	for _, address := range candidates {
		history, err := d.store.WalletTradeHistory(ctx, address, since)
		if err != nil {
			log.Warn().Err(err).Str("wallet", address).Msg("insider: trade history fetch failed")
			continue
		}
		wallet := scoreFromHistory(address, history, now)
		if wallet == nil {
			continue
		}
		batch = append(batch, wallet)
	}

	batch = d.applyPendingFeedback(ctx, batch)

	if len(batch) > 0 {
		d.cache.BatchUpdate(batch)
		log.Info().Int("wallets", len(batch)).Msg("insider: batch update pushed to cache")
	}
}

// discover unions the three discovery queries and dedupes the result.
func (d *Detector) discover(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	add := func(addrs []string) {
		for _, a := range addrs {
			if _, ok := seen[a]; !ok {
				seen[a] = struct{}{}
				out = append(out, a)
			}
		}
	}

	high, err := d.store.HighPerformers(ctx, discoverMinWinRate, discoverMinProfit, discoverMinTrades)
	if err != nil {
		return nil, err
	}
	add(high)

	early, err := d.store.ConsistentEarlyEntrants(ctx, discoverMaxAvgDelayMinutes, discoverMinEarlyEntryRate)
	if err != nil {
		return nil, err
	}
	add(early)

	outsized, err := d.store.OutsizedProfitWallets(ctx, discoverMinOutsizedProfit)
	if err != nil {
		return nil, err
	}
	add(outsized)

	return out, nil
}

// scoreFromHistory computes a wallet's full profile from its evidence
// trades, returning nil when the wallet doesn't qualify to be scored.
func scoreFromHistory(address string, history []*domain.CopyTradeRecord, now time.Time) *domain.InsiderWallet {
	if len(history) == 0 {
		return nil
	}

	wins := 0
	var profitSum float64
	var earlyEntrySum float64
	outcomes := make([]TradeOutcome, 0, len(history))
	var lastTrade time.Time
	var firstSeen time.Time = now

	for i, rec := range history {
		if rec.PnL != nil && *rec.PnL > 0 {
			wins++
		}
		win := rec.PnL != nil && *rec.PnL > 0
		profit := 0.0
		if rec.PnL != nil {
			profit = *rec.PnL
		}
		profitSum += profit

		delay := time.Duration(0)
		if rec.HoldSeconds != nil {
			delay = time.Duration(*rec.HoldSeconds) * time.Second
		}
		earlyEntrySum += EarlyEntryScore(delay)

		outcomes = append(outcomes, TradeOutcome{ProfitPct: profit, Win: win, DelayAfterLaunch: delay, OccurredAt: rec.CreatedAt})

		if i == 0 || rec.CreatedAt.After(lastTrade) {
			lastTrade = rec.CreatedAt
		}
		if rec.CreatedAt.Before(firstSeen) {
			firstSeen = rec.CreatedAt
		}
	}

	total := len(history)
	winRate := float64(wins) / float64(total)
	avgProfit := profitSum / float64(total)

	if !Qualifies(winRate, avgProfit, total) {
		return nil
	}

	earlyEntryScore := earlyEntrySum / float64(total)
	volumeScore := VolumeScore(total)
	daysSinceLastTrade := now.Sub(lastTrade).Hours() / 24
	confidence := Confidence(winRate, avgProfit, earlyEntryScore, volumeScore, daysSinceLastTrade)
	recentActivity := RecentActivityScore(outcomes, now)
	status := DeriveStatus(confidence, winRate, recentActivity)

	return &domain.InsiderWallet{
		Address:          address,
		Confidence:       confidence,
		WinRate:          winRate,
		AvgProfitPct:     avgProfit,
		EarlyEntryScore:  earlyEntryScore,
		TotalTrades:      total,
		ProfitableTrades: wins,
		LastTradeTS:      lastTrade,
		FirstSeenTS:      firstSeen,
		RecentActivity:   recentActivity,
		Status:           status,
	}
}

// applyPendingFeedback folds in confidence adjustments from the
// performance aggregator additively (clipped to [0,1]), possibly
// transitioning a wallet's status, including into Blacklisted, the one
// path by which that sticky status is entered.
func (d *Detector) applyPendingFeedback(ctx context.Context, batch []*domain.InsiderWallet) []*domain.InsiderWallet {
	feedback, err := d.store.PendingFeedback(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("insider: pending feedback fetch failed")
		return batch
	}
	if len(feedback) == 0 {
		return batch
	}

	byAddress := make(map[string]*domain.InsiderWallet, len(batch))
	for _, w := range batch {
		byAddress[w.Address] = w
	}

	for _, fb := range feedback {
		w, ok := byAddress[fb.Address]
		if !ok {
			w, ok = d.cache.lookupMutable(fb.Address)
			if !ok {
				continue
			}
			byAddress[fb.Address] = w
			batch = append(batch, w)
		}
		w.Confidence = clamp(w.Confidence+fb.ScoreAdjustment, 0, 1)
		if fb.StatusRecommendation != "" {
			w.Status = fb.StatusRecommendation
		}
	}

	return batch
}
