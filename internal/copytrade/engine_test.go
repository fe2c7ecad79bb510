package copytrade

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"copytrade-core/internal/domain"
	"copytrade-core/internal/eventbus"
	"copytrade-core/internal/insider"
	"copytrade-core/internal/position"
)

// fakeStore is a minimal in-memory capability.Store for exercising the
// copy-trading engine without a real database.
type fakeStore struct {
	mu      sync.Mutex
	records map[int64]*domain.CopyTradeRecord
	nextID  int64
}

func newFakeStore() *fakeStore { return &fakeStore{records: make(map[int64]*domain.CopyTradeRecord)} }

func (s *fakeStore) AppendCopyTradeRecord(ctx context.Context, rec *domain.CopyTradeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cp := *rec
	cp.ID = s.nextID
	s.records[s.nextID] = &cp
	return s.nextID, nil
}

func (s *fakeStore) UpdateCopyTradeRecord(ctx context.Context, id int64, exit, pnl float64, holdSeconds int64, result domain.CopyTradeResult, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	rec.Result = result
	rec.ExitReason = reason
	return nil
}

func (s *fakeStore) RecentCopyTrades(ctx context.Context, insider string, limit int) ([]*domain.CopyTradeRecord, error) {
	return nil, nil
}
func (s *fakeStore) WalletTradeHistory(ctx context.Context, address string, since time.Time) ([]*domain.CopyTradeRecord, error) {
	return nil, nil
}
func (s *fakeStore) HighPerformers(ctx context.Context, minWinRate, minProfit float64, minTrades int) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) ConsistentEarlyEntrants(ctx context.Context, maxAvgDelayMinutes, minEarlyEntryRate float64) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) OutsizedProfitWallets(ctx context.Context, minProfitPct float64) ([]string, error) {
	return nil, nil
}
func (s *fakeStore) PendingFeedback(ctx context.Context) ([]domain.PerformanceFeedback, error) {
	return nil, nil
}
func (s *fakeStore) RecordSessionStart(ctx context.Context, startingCapitalUSD float64) (int64, error) {
	return 1, nil
}
func (s *fakeStore) RecordSessionEnd(ctx context.Context, sessionID int64, endingCapitalUSD float64, trades int) error {
	return nil
}

func (s *fakeStore) result(id int64) domain.CopyTradeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Result
}

func activeWallet(address string, confidence float64) *domain.InsiderWallet {
	return &domain.InsiderWallet{Address: address, Confidence: confidence, WinRate: 0.8, Status: domain.StatusActive}
}

func TestHandleBuyImmediatePublishesAndMarksExecuted(t *testing.T) {
	cache := insider.NewCache(insider.DefaultCacheConfig())
	cache.BatchUpdate([]*domain.InsiderWallet{activeWallet("W", 0.95)}) // confidence>=0.9 -> delay 0

	store := newFakeStore()
	bus := eventbus.New()
	signals, cancel := bus.SubscribeSignals()
	defer cancel()

	e := New(Config{Enabled: true, MaxDailyCopyTrades: 10}, cache, store, bus, nil)
	e.HandleBuy(context.Background(), WalletAction{Insider: "W", TokenMint: "T", Price: 0.001, TokenAgeMinutes: 2, At: time.Now()})

	select {
	case sig := <-signals:
		require.Equal(t, domain.SignalBuy, sig.Kind)
		require.Equal(t, "T", sig.Buy.TokenMint)
	case <-time.After(time.Second):
		t.Fatal("expected a buy signal")
	}

	require.Len(t, store.records, 1)
	for _, rec := range store.records {
		require.Equal(t, domain.ResultExecuted, rec.Result)
	}
}

func TestHandleBuyDailyLimitDropsExtras(t *testing.T) {
	cache := insider.NewCache(insider.DefaultCacheConfig())
	cache.BatchUpdate([]*domain.InsiderWallet{activeWallet("W", 0.95)})

	store := newFakeStore()
	bus := eventbus.New()
	signals, cancel := bus.SubscribeSignals()
	defer cancel()

	e := New(Config{Enabled: true, MaxDailyCopyTrades: 1}, cache, store, bus, nil)
	now := time.Now()
	e.HandleBuy(context.Background(), WalletAction{Insider: "W", TokenMint: "T1", Price: 1, TokenAgeMinutes: 1, At: now})
	e.HandleBuy(context.Background(), WalletAction{Insider: "W", TokenMint: "T2", Price: 1, TokenAgeMinutes: 1, At: now})

	<-signals // first one
	select {
	case <-signals:
		t.Fatal("expected no second signal, daily limit exceeded")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleBuyNoDecisionDropsSilently(t *testing.T) {
	cache := insider.NewCache(insider.DefaultCacheConfig())
	store := newFakeStore()
	bus := eventbus.New()
	signals, cancel := bus.SubscribeSignals()
	defer cancel()

	e := New(Config{Enabled: true, MaxDailyCopyTrades: 10}, cache, store, bus, nil)
	e.HandleBuy(context.Background(), WalletAction{Insider: "unknown", TokenMint: "T", Price: 1, TokenAgeMinutes: 1, At: time.Now()})

	select {
	case <-signals:
		t.Fatal("expected no signal for unknown insider")
	case <-time.After(100 * time.Millisecond):
	}

	require.Equal(t, 0, e.dailyCount, "a nil decision must not consume a daily BUY signal slot")
}

func TestScheduleDelayedBuyCanceledOnShutdownReachesTerminalState(t *testing.T) {
	cache := insider.NewCache(insider.DefaultCacheConfig())
	cache.BatchUpdate([]*domain.InsiderWallet{activeWallet("W", 0.78)}) // confidence 0.7-0.8 -> delay 2s

	store := newFakeStore()
	bus := eventbus.New()

	e := New(Config{Enabled: true, MaxDailyCopyTrades: 10}, cache, store, bus, nil)
	e.HandleBuy(context.Background(), WalletAction{Insider: "W", TokenMint: "T", Price: 1, TokenAgeMinutes: 1, At: time.Now()})

	e.Shutdown()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.records, 1)
	for _, rec := range store.records {
		require.Equal(t, domain.ResultCancelled, rec.Result)
	}
}

func TestHandleSellRequiresAllThreeThresholds(t *testing.T) {
	cache := insider.NewCache(insider.DefaultCacheConfig())
	store := newFakeStore()
	bus := eventbus.New()
	signals, cancel := bus.SubscribeSignals()
	defer cancel()

	e := New(Config{Enabled: true, MaxDailyCopyTrades: 10}, cache, store, bus, nil)

	e.HandleSell(SellCheck{Insider: "W", TokenMint: "T", OurProfitPct: 0.1, InsiderProfitPct: 0.5, InsiderConfidence: 0.9, CurrentPrice: 1})
	select {
	case <-signals:
		t.Fatal("expected no sell signal, our profit below threshold")
	case <-time.After(100 * time.Millisecond):
	}

	e.HandleSell(SellCheck{Insider: "W", TokenMint: "T", OurProfitPct: 0.35, InsiderProfitPct: 0.45, InsiderConfidence: 0.80, CurrentPrice: 2.0})
	select {
	case sig := <-signals:
		require.Equal(t, domain.SignalSell, sig.Kind)
		require.InDelta(t, 1.8, sig.Sell.StopLoss, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("expected a sell signal")
	}
}

func TestRunDispatchesWalletBuyEvent(t *testing.T) {
	cache := insider.NewCache(insider.DefaultCacheConfig())
	cache.BatchUpdate([]*domain.InsiderWallet{activeWallet("W", 0.95)})
	cache.RecordTokenLaunch("T", time.Now())

	store := newFakeStore()
	bus := eventbus.New()
	signals, cancelSignals := bus.SubscribeSignals()
	defer cancelSignals()

	e := New(Config{Enabled: true, MaxDailyCopyTrades: 10}, cache, store, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	bus.PublishWalletEvent(eventbus.WalletEvent{
		Address: "W",
		Mint:    "T",
		Event:   domain.SwapDetected{Wallet: "W", TokenOut: "T", Direction: domain.SwapBuy},
	})

	select {
	case sig := <-signals:
		require.Equal(t, domain.SignalBuy, sig.Kind)
		require.Equal(t, "T", sig.Buy.TokenMint)
	case <-time.After(time.Second):
		t.Fatal("expected a buy signal from a dispatched wallet event")
	}
}

func TestRunDispatchesWalletSellEventUsingTrackerPosition(t *testing.T) {
	cache := insider.NewCache(insider.DefaultCacheConfig())
	cache.BatchUpdate([]*domain.InsiderWallet{{Address: "W", Confidence: 0.80, AvgProfitPct: 0.50, Status: domain.StatusActive}})

	store := newFakeStore()
	bus := eventbus.New()
	signals, cancelSignals := bus.SubscribeSignals()
	defer cancelSignals()

	tracker := position.NewTracker(filepath.Join(t.TempDir(), "positions.json"))
	tracker.Open(&domain.Position{Mint: "T", EntryPrice: 1.0, CurrentPrice: 1.5, Status: domain.PositionOpen})

	e := New(Config{Enabled: true, MaxDailyCopyTrades: 10}, cache, store, bus, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	bus.PublishWalletEvent(eventbus.WalletEvent{
		Address: "W",
		Mint:    "T",
		Event:   domain.SwapDetected{Wallet: "W", TokenIn: "T", Direction: domain.SwapSell},
	})

	select {
	case sig := <-signals:
		require.Equal(t, domain.SignalSell, sig.Kind)
		require.Equal(t, "T", sig.Sell.TokenMint)
	case <-time.After(time.Second):
		t.Fatal("expected a sell signal, our profit (0.5) and insider profit (0.5) and confidence (0.8) all clear the thresholds")
	}
}
