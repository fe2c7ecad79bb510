// Package copytrade implements the copy-trading engine: converts
// observed insider wallet actions into TradingSignal buy/sell messages,
// subject to daily limits, cache decisions, and cancelable publish
// delays.
package copytrade

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-core/internal/capability"
	"copytrade-core/internal/domain"
	"copytrade-core/internal/eventbus"
	"copytrade-core/internal/insider"
	"copytrade-core/internal/position"
)

// Sell-path thresholds
const (
	sellMinOurProfitPct     = 0.30
	sellMinInsiderProfitPct = 0.40
	sellMinInsiderConfidence = 0.75
	sellStopLossBelowExit   = 0.10
)

// Config holds the engine's tunables.
type Config struct {
	Enabled            bool
	MaxDailyCopyTrades int
}

// pendingDelay tracks a scheduled delayed publish so it can be canceled
// cleanly on shutdown.
type pendingDelay struct {
	timer *time.Timer
	done  chan struct{}
}

// Engine is the copy-trading engine. One instance per process; bound to
// the cache it queries, the store it persists to, and the bus it
// publishes signals on.
type Engine struct {
	cfg     Config
	cache   *insider.Cache
	store   capability.Store
	bus     *eventbus.Bus
	tracker *position.Tracker

	mu          sync.Mutex
	dailyDate   string
	dailyCount  int
	pending     map[int64]*pendingDelay
	shutdownCh  chan struct{}
	shutdownWG  sync.WaitGroup
}

// New builds a copy-trading engine. tracker is nil-tolerant: when set, it
// supplies OurProfitPct for wallet-driven sell checks dispatched by Run;
// when nil, Run skips the sell path for wallet events entirely.
func New(cfg Config, cache *insider.Cache, store capability.Store, bus *eventbus.Bus, tracker *position.Tracker) *Engine {
	return &Engine{
		cfg:        cfg,
		cache:      cache,
		store:      store,
		bus:        bus,
		tracker:    tracker,
		pending:    make(map[int64]*pendingDelay),
		shutdownCh: make(chan struct{}),
	}
}

// Run subscribes to wallet-action events (decoded swaps by addresses the
// insider cache tracks) and dispatches each one to HandleBuy or
// HandleSell depending on swap direction, until ctx is canceled.
func (e *Engine) Run(ctx context.Context) {
	events, cancel := e.bus.SubscribeWalletEvents()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-events:
			if !ok {
				return
			}
			e.dispatchWalletEvent(ctx, w)
		}
	}
}

func (e *Engine) dispatchWalletEvent(ctx context.Context, w eventbus.WalletEvent) {
	switch w.Event.Direction {
	case domain.SwapBuy:
		if _, tracked := e.cache.Lookup(w.Address); !tracked {
			return
		}
		// A mint with no recorded launch (never seen by RecordTokenLaunch)
		// is treated as past the age gate rather than guessed at.
		age, ok := e.cache.TokenAgeMinutes(w.Mint, time.Now())
		if !ok {
			return
		}
		e.HandleBuy(ctx, WalletAction{
			Insider:         w.Address,
			TokenMint:       w.Mint,
			TokenAgeMinutes: age,
			At:              time.Now(),
		})

	case domain.SwapSell:
		info, tracked := e.cache.Lookup(w.Address)
		if !tracked || e.tracker == nil {
			return
		}
		pos, open := e.tracker.Get(w.Mint)
		if !open || pos.EntryPrice <= 0 {
			return
		}
		e.HandleSell(SellCheck{
			Insider:           w.Address,
			TokenMint:         w.Mint,
			OurProfitPct:      (pos.CurrentPrice - pos.EntryPrice) / pos.EntryPrice,
			InsiderProfitPct:  info.AvgProfitPct,
			InsiderConfidence: info.Confidence,
			CurrentPrice:      pos.CurrentPrice,
		})
	}
}

// WalletAction is one observed swap by a tracked wallet, the unit the
// buy path reasons about.
type WalletAction struct {
	Insider         string
	TokenMint       string
	Price           float64
	TokenAgeMinutes float64
	At              time.Time
}

// HandleBuy runs the buy path for one observed insider wallet action.
func (e *Engine) HandleBuy(ctx context.Context, action WalletAction) {
	if !e.cfg.Enabled {
		return
	}

	decision := e.cache.ShouldCopyTrade(action.Insider, action.TokenAgeMinutes)
	if decision == nil {
		return
	}

	if !e.incrementDailyIfUnderLimit(action.At) {
		log.Info().Str("insider", action.Insider).Msg("copytrade: daily limit reached, dropping buy")
		return
	}

	rec := &domain.CopyTradeRecord{
		Insider:   action.Insider,
		Token:     action.TokenMint,
		OurEntry:  action.Price,
		Result:    domain.ResultPending,
		CreatedAt: action.At,
	}
	id, err := e.store.AppendCopyTradeRecord(ctx, rec)
	if err != nil {
		log.Warn().Err(err).Msg("copytrade: failed to persist pending record")
		return
	}

	signal := domain.TradingSignal{
		Kind: domain.SignalBuy,
		Buy: &domain.BuySignal{
			TokenMint:  action.TokenMint,
			Confidence: decision.Confidence,
			MaxAmount:  decision.PositionSize,
			Reason:     "copy-trade: " + action.Insider,
			Source:     "copytrade",
			Urgency:    decision.Urgency,
			Metadata:   map[string]string{"insider": action.Insider, "copy_trade_id": strconv.FormatInt(id, 10)},
		},
	}

	if decision.DelaySeconds <= 0 {
		e.publishBuy(ctx, id, signal)
		return
	}
	e.scheduleDelayedBuy(ctx, id, signal, time.Duration(decision.DelaySeconds)*time.Second)
}

func (e *Engine) publishBuy(ctx context.Context, copyTradeID int64, signal domain.TradingSignal) {
	e.bus.PublishSignal(signal)
	if err := e.store.UpdateCopyTradeRecord(ctx, copyTradeID, 0, 0, 0, domain.ResultExecuted, "published"); err != nil {
		log.Warn().Err(err).Int64("copy_trade_id", copyTradeID).Msg("copytrade: failed to mark record executed")
	}
}

// scheduleDelayedBuy publishes after the decision's delay unless
// shutdown fires first, in which case the record is finalized with a
// terminal Cancelled result — never left dangling.
func (e *Engine) scheduleDelayedBuy(ctx context.Context, copyTradeID int64, signal domain.TradingSignal, delay time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(delay, func() {
		defer close(done)
		e.publishBuy(ctx, copyTradeID, signal)
		e.mu.Lock()
		delete(e.pending, copyTradeID)
		e.mu.Unlock()
	})

	e.mu.Lock()
	e.pending[copyTradeID] = &pendingDelay{timer: timer, done: done}
	e.mu.Unlock()

	e.shutdownWG.Add(1)
	go func() {
		defer e.shutdownWG.Done()
		select {
		case <-done:
		case <-e.shutdownCh:
			if timer.Stop() {
				e.mu.Lock()
				delete(e.pending, copyTradeID)
				e.mu.Unlock()
				if err := e.store.UpdateCopyTradeRecord(context.Background(), copyTradeID, 0, 0, 0, domain.ResultCancelled, "shutdown"); err != nil {
					log.Warn().Err(err).Int64("copy_trade_id", copyTradeID).Msg("copytrade: failed to finalize cancelled record")
				}
			}
		}
	}()
}

// Shutdown cancels every pending delayed publish, waiting for each to
// reach a terminal persisted state before returning.
func (e *Engine) Shutdown() {
	close(e.shutdownCh)
	e.shutdownWG.Wait()
}

// incrementDailyIfUnderLimit enforces the daily BUY signal cap, resetting
// the counter when the calendar date (UTC) rolls over.
func (e *Engine) incrementDailyIfUnderLimit(at time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	date := at.UTC().Format("2006-01-02")
	if date != e.dailyDate {
		e.dailyDate = date
		e.dailyCount = 0
	}
	if e.dailyCount >= e.cfg.MaxDailyCopyTrades {
		return false
	}
	e.dailyCount++
	return true
}

// SellCheck is the input to the sell path: the insider's exit and our own
// open position in the same token.
type SellCheck struct {
	Insider             string
	TokenMint           string
	OurProfitPct        float64
	InsiderProfitPct    float64
	InsiderConfidence   float64
	CurrentPrice        float64
}

// HandleSell runs the sell path: only triggers when all three thresholds
// are met, publishing a Sell signal with a 10%-below-exit stop-loss. The
// signal carries no urgency level: SellSignal has no urgency field.
func (e *Engine) HandleSell(check SellCheck) {
	if check.OurProfitPct < sellMinOurProfitPct {
		return
	}
	if check.InsiderProfitPct < sellMinInsiderProfitPct {
		return
	}
	if check.InsiderConfidence < sellMinInsiderConfidence {
		return
	}

	e.bus.PublishSignal(domain.TradingSignal{
		Kind: domain.SignalSell,
		Sell: &domain.SellSignal{
			TokenMint: check.TokenMint,
			StopLoss:  check.CurrentPrice * (1 - sellStopLossBelowExit),
			Reason:    "copy-trade exit: " + check.Insider,
		},
	})
}
