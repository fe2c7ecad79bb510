package insider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"copytrade-core/internal/domain"
)

func activeWallet(address string, confidence float64) *domain.InsiderWallet {
	return &domain.InsiderWallet{
		Address:    address,
		Confidence: confidence,
		WinRate:    0.8,
		Status:     domain.StatusActive,
	}
}

func TestShouldCopyTradeBlacklistedAlwaysNone(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	w := activeWallet("w1", 0.9)
	w.Status = domain.StatusBlacklisted
	c.BatchUpdate([]*domain.InsiderWallet{w})

	require.Nil(t, c.ShouldCopyTrade("w1", 1))
}

func TestShouldCopyTradeTokenTooOldYieldsNone(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	c.BatchUpdate([]*domain.InsiderWallet{activeWallet("w1", 0.9)})

	require.Nil(t, c.ShouldCopyTrade("w1", c.cfg.MaxTokenAgeMinutes+1))
}

func TestShouldCopyTradeBelowConfidenceThresholdYieldsNone(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	c.BatchUpdate([]*domain.InsiderWallet{activeWallet("w1", 0.5)})

	require.Nil(t, c.ShouldCopyTrade("w1", 1))
}

func TestShouldCopyTradeReturnsDecisionForQualifiedWallet(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	c.BatchUpdate([]*domain.InsiderWallet{activeWallet("w1", 0.85)})

	d := c.ShouldCopyTrade("w1", 1)
	require.NotNil(t, d)
	require.Equal(t, domain.StatusActive, mustLookup(t, c, "w1").Status)
	require.InDelta(t, 0.1*1.7, d.PositionSize, 1e-9)
	require.Equal(t, 1, d.DelaySeconds)
}

func mustLookup(t *testing.T, c *Cache, address string) domain.InsiderWallet {
	t.Helper()
	w, ok := c.Lookup(address)
	require.True(t, ok)
	return w
}

func TestBatchUpdateEmptyIsNoOp(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	c.BatchUpdate([]*domain.InsiderWallet{activeWallet("w1", 0.9)})
	before := c.Stats()

	c.BatchUpdate(nil)
	after := c.Stats()

	require.Equal(t, before.TrackedCount, after.TrackedCount)
	require.Equal(t, before.LastUpdateTS, after.LastUpdateTS)
}

func TestBatchUpdateMovesBlacklistedOutOfTopPerformers(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	c.BatchUpdate([]*domain.InsiderWallet{activeWallet("w1", 0.9), activeWallet("w2", 0.95)})
	require.Len(t, c.TopPerformers(), 2)

	blacklisted := activeWallet("w1", 0.9)
	blacklisted.Status = domain.StatusBlacklisted
	c.BatchUpdate([]*domain.InsiderWallet{blacklisted})

	top := c.TopPerformers()
	require.Len(t, top, 1)
	require.Equal(t, "w2", top[0].Address)
}

func TestTopPerformersCappedAtConfiguredK(t *testing.T) {
	cfg := DefaultCacheConfig()
	cfg.TopPerformersCount = 2
	c := NewCache(cfg)
	c.BatchUpdate([]*domain.InsiderWallet{
		activeWallet("a", 0.80),
		activeWallet("b", 0.90),
		activeWallet("c", 0.85),
	})
	top := c.TopPerformers()
	require.Len(t, top, 2)
	require.Equal(t, "b", top[0].Address)
	require.Equal(t, "c", top[1].Address)
}

func TestRecordTokenLaunchTrimsOlderThan24h(t *testing.T) {
	c := NewCache(DefaultCacheConfig())
	now := time.Now()
	c.RecordTokenLaunch("old", now.Add(-25*time.Hour))
	c.RecordTokenLaunch("new", now)

	c.mu.RLock()
	_, hasOld := c.launchTS["old"]
	_, hasNew := c.launchTS["new"]
	c.mu.RUnlock()

	require.False(t, hasOld)
	require.True(t, hasNew)
}

func TestDelayAndUrgencyStepFunctions(t *testing.T) {
	require.Equal(t, 0, delayForConfidence(0.95))
	require.Equal(t, 1, delayForConfidence(0.85))
	require.Equal(t, 2, delayForConfidence(0.75))
	require.Equal(t, 5, delayForConfidence(0.5))

	require.Equal(t, domain.UrgencyImmediate, urgencyForConfidence(0.95))
	require.Equal(t, domain.UrgencyLow, urgencyForConfidence(0.2))
}
