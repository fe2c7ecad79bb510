// Package insider implements the insider intelligence cache and the
// detector/scorer: a hot-path, reader-many/writer-exclusive table of
// wallet confidence scores, and the offline job that recomputes them from
// trade history.
package insider

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"copytrade-core/internal/domain"
)

// CacheConfig holds the thresholds the hot-path lookup and batch updater
// apply.
type CacheConfig struct {
	MinConfidenceThreshold float64
	MaxTokenAgeMinutes     float64
	BasePositionSOL        float64
	MaxPositionMultiplier  float64
	TopPerformersCount     int
	RiskFactor             float64
}

// DefaultCacheConfig returns the stalker cache's operating defaults:
// min_confidence_threshold 0.75, max_token_age_minutes 30,
// base_position_sol 0.1, max_position_multiplier 2.0, top_performers 20.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MinConfidenceThreshold: 0.75,
		MaxTokenAgeMinutes:     30,
		BasePositionSOL:        0.1,
		MaxPositionMultiplier:  2.0,
		TopPerformersCount:     20,
		RiskFactor:             1.0,
	}
}

// Cache is the hot-path lookup structure. Wallet entries are installed
// through BatchUpdate, which holds the write lock once for the whole
// batch; RecordTokenLaunch takes the write lock for the launch table;
// ShouldCopyTrade only ever needs the read lock.
type Cache struct {
	cfg CacheConfig

	mu        sync.RWMutex
	table     map[string]*domain.InsiderWallet
	blacklist map[string]struct{}
	topK      []*domain.InsiderWallet
	launchTS  map[string]time.Time

	totalLookups atomic.Uint64
	cacheHits    atomic.Uint64
	lastUpdateTS atomic.Int64
}

// NewCache builds an empty cache. Entries are installed via BatchUpdate.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		cfg:       cfg,
		table:     make(map[string]*domain.InsiderWallet),
		blacklist: make(map[string]struct{}),
		launchTS:  make(map[string]time.Time),
	}
}

// RecordTokenLaunch notes a mint's launch time for token-age lookups,
// trimmed to the last 24 hours on each call.
func (c *Cache) RecordTokenLaunch(mint string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.launchTS[mint] = at
	cutoff := at.Add(-24 * time.Hour)
	for m, ts := range c.launchTS {
		if ts.Before(cutoff) {
			delete(c.launchTS, m)
		}
	}
}

// TokenAgeMinutes returns how long ago mint was recorded via
// RecordTokenLaunch, for callers assembling the tokenAgeMinutes argument
// to ShouldCopyTrade. ok is false for a mint with no recorded launch (too
// old and already trimmed, or never seen).
func (c *Cache) TokenAgeMinutes(mint string, now time.Time) (age float64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, found := c.launchTS[mint]
	if !found {
		return 0, false
	}
	return now.Sub(ts).Minutes(), true
}

// ShouldCopyTrade is the primary hot-path operation: constant-time lookup
// returning a CopyDecision or nil. It never blocks on the writer for long
// since BatchUpdate holds the lock only for the duration of its own
// in-memory mutation.
func (c *Cache) ShouldCopyTrade(address string, tokenAgeMinutes float64) *domain.CopyDecision {
	c.totalLookups.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, blacklisted := c.blacklist[address]; blacklisted {
		return nil
	}
	if tokenAgeMinutes > c.cfg.MaxTokenAgeMinutes {
		return nil
	}
	w, ok := c.table[address]
	if !ok {
		return nil
	}
	if w.Status != domain.StatusActive || w.Confidence < c.cfg.MinConfidenceThreshold {
		return nil
	}

	c.cacheHits.Add(1)
	return &domain.CopyDecision{
		Confidence:   w.Confidence,
		PositionSize: c.cfg.BasePositionSOL * clamp(w.Confidence*2, 0, c.cfg.MaxPositionMultiplier) * c.cfg.RiskFactor,
		DelaySeconds: delayForConfidence(w.Confidence),
		Urgency:      urgencyForConfidence(w.Confidence),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func delayForConfidence(confidence float64) int {
	switch {
	case confidence >= 0.9:
		return 0
	case confidence >= 0.8:
		return 1
	case confidence >= 0.7:
		return 2
	default:
		return 5
	}
}

func urgencyForConfidence(confidence float64) domain.Urgency {
	switch {
	case confidence >= 0.9:
		return domain.UrgencyImmediate
	case confidence >= 0.8:
		return domain.UrgencyHigh
	case confidence >= 0.7:
		return domain.UrgencyNormal
	default:
		return domain.UrgencyLow
	}
}

// BatchUpdate acquires the write lock once, applies every wallet
// transition (moving entries between the table and the blacklist as
// status dictates), then refreshes the top-performers list. Passing an
// empty slice after a real update is a no-op, observationally equal to
// not calling BatchUpdate again.
func (c *Cache) BatchUpdate(wallets []*domain.InsiderWallet) {
	if len(wallets) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range wallets {
		if w.Status == domain.StatusBlacklisted {
			delete(c.table, w.Address)
			c.blacklist[w.Address] = struct{}{}
			continue
		}
		delete(c.blacklist, w.Address)
		c.table[w.Address] = w
	}

	c.refreshTopPerformersLocked()
	c.lastUpdateTS.Store(time.Now().Unix())
}

func (c *Cache) refreshTopPerformersLocked() {
	active := make([]*domain.InsiderWallet, 0, len(c.table))
	for _, w := range c.table {
		if w.Status == domain.StatusActive {
			active = append(active, w)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Confidence > active[j].Confidence })
	if len(active) > c.cfg.TopPerformersCount {
		active = active[:c.cfg.TopPerformersCount]
	}
	c.topK = active
}

// TopPerformers returns a read snapshot of the pre-sorted top-K active
// wallets by confidence.
func (c *Cache) TopPerformers() []*domain.InsiderWallet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.InsiderWallet, len(c.topK))
	copy(out, c.topK)
	return out
}

// Lookup returns a read snapshot of a single wallet, if tracked.
func (c *Cache) Lookup(address string) (domain.InsiderWallet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.table[address]
	if !ok {
		return domain.InsiderWallet{}, false
	}
	return *w, true
}

// lookupMutable returns a detached copy of a tracked wallet for callers
// that need to mutate it before feeding it back through BatchUpdate (the
// detector's feedback path). Never returns the table's own pointer.
func (c *Cache) lookupMutable(address string) (*domain.InsiderWallet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.table[address]
	if !ok {
		return nil, false
	}
	wCopy := *w
	return &wCopy, true
}

// Stats is a snapshot of the cache's atomic counters, exposed for the
// monitor endpoint.
type Stats struct {
	TotalLookups uint64
	CacheHits    uint64
	LastUpdateTS int64
	TrackedCount int
	Blacklisted  int
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		TotalLookups: c.totalLookups.Load(),
		CacheHits:    c.cacheHits.Load(),
		LastUpdateTS: c.lastUpdateTS.Load(),
		TrackedCount: len(c.table),
		Blacklisted:  len(c.blacklist),
	}
}
