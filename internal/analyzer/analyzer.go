package analyzer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-core/internal/decode"
	"copytrade-core/internal/domain"
	"copytrade-core/internal/eventbus"
	"copytrade-core/internal/insider"
)

// tickInterval is the periodic scoring cadence: 15s.
const tickInterval = 15 * time.Second

// bondingReferenceSOL is the constant reference liquidity the curve
// progress formula measures deviation from.
const bondingReferenceSOL = 85.0

// priceStep is the per-swap price-index adjustment used as a price proxy
// when no oracle price is attached to a swap event: buys step the index
// up, sells step it down. Pool reserve ratios would be the authoritative
// source but aren't available on decoded swap events.
const priceStep = 0.0005

// Analyzer owns every mint's sliding window and runs the periodic scoring
// tick that turns window contents into TradingSignals on the bus. It also
// watches decoded swaps for addresses the insider cache tracks, emitting
// WalletEvents for the copy-trading engine.
type Analyzer struct {
	bus   *eventbus.Bus
	cache *insider.Cache

	windows    map[string]*window
	priceIndex map[string]float64
}

// New creates an analyzer bound to a bus. cache is nil-tolerant: when
// set, observed swaps from tracked addresses are published as
// WalletEvents; when nil, wallet-action watching is skipped. Call Run to
// start consuming market events and ticking.
func New(bus *eventbus.Bus, cache *insider.Cache) *Analyzer {
	return &Analyzer{
		bus:        bus,
		cache:      cache,
		windows:    make(map[string]*window),
		priceIndex: make(map[string]float64),
	}
}

// Run subscribes to market events and drives the scoring tick until ctx
// is canceled. Intended to run as one long-lived goroutine (single
// consumer, so the analyzer observes bus order for its own subscription).
func (a *Analyzer) Run(ctx context.Context) {
	events, cancel := a.bus.SubscribeMarketEvents()
	defer cancel()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.ingest(e, time.Now())
		case <-ticker.C:
			a.tick(time.Now())
		}
	}
}

// ingest appends a TimeSeriesPoint derived from a single market event to
// the relevant mint's window, creating the window on first sight, and
// separately watches swaps for tracked insider addresses.
func (a *Analyzer) ingest(e domain.MarketEvent, now time.Time) {
	a.watchWalletAction(e)

	mint, point, ok := a.eventToPoint(e, now)
	if !ok {
		return
	}
	w, exists := a.windows[mint]
	if !exists {
		w = newWindow(mint, now)
		a.windows[mint] = w
	}
	w.append(point)
}

// watchWalletAction publishes a WalletEvent when a decoded swap was made
// by an address the insider cache tracks, regardless of the cache's
// current copy-trading decision for it (HandleBuy/HandleSell apply their
// own thresholds downstream).
func (a *Analyzer) watchWalletAction(e domain.MarketEvent) {
	if a.cache == nil || e.Kind != domain.EventSwapDetected {
		return
	}
	sw := e.SwapDetected
	if sw.Wallet == "" {
		return
	}
	if _, tracked := a.cache.Lookup(sw.Wallet); !tracked {
		return
	}
	mint := sw.TokenOut
	if sw.Direction == domain.SwapSell {
		mint = sw.TokenIn
	}
	a.bus.PublishWalletEvent(eventbus.WalletEvent{
		Address: sw.Wallet,
		Mint:    mint,
		Event:   sw,
	})
}

func (a *Analyzer) eventToPoint(e domain.MarketEvent, now time.Time) (string, domain.TimeSeriesPoint, bool) {
	switch e.Kind {
	case domain.EventPoolCreated:
		pc := e.PoolCreated
		a.priceIndex[pc.BaseMint] = 1.0
		return pc.BaseMint, domain.TimeSeriesPoint{
			T:             now,
			Price:         1.0,
			MarketCap:     pc.InitialLiquidity,
			CurveReserves: pc.InitialLiquidity,
			CurveProgress: decode.BondingProgress(bondingReferenceSOL, pc.InitialLiquidity),
		}, true

	case domain.EventSwapDetected:
		sw := e.SwapDetected
		mint := sw.TokenOut
		if sw.Direction == domain.SwapSell {
			mint = sw.TokenIn
		}
		if mint == "" {
			return "", domain.TimeSeriesPoint{}, false
		}
		price := a.priceIndex[mint]
		if price == 0 {
			price = 1.0
		}
		if sw.Direction == domain.SwapBuy {
			price += priceStep
		} else {
			price -= priceStep
		}
		if price < 0 {
			price = 0
		}
		a.priceIndex[mint] = price
		return mint, domain.TimeSeriesPoint{
			T:      now,
			Price:  price,
			Volume: 1,
			TxType: sw.Direction,
			Trader: sw.Wallet,
		}, true

	default:
		return "", domain.TimeSeriesPoint{}, false
	}
}

// tick scores every window with sufficient data, publishes resulting
// signals, and sweeps windows past their lifetime.
func (a *Analyzer) tick(now time.Time) {
	for mint, w := range a.windows {
		if w.age(now) >= sweepAge {
			delete(a.windows, mint)
			delete(a.priceIndex, mint)
			continue
		}
		if !w.hasSufficientData() {
			continue
		}

		trend := computeTrendAnalysis(w.points)
		mathAnalysis := computeMathematicalAnalysis(w.points, trend)

		a.publishSignal(mint, trend, mathAnalysis)
	}
}

func (a *Analyzer) publishSignal(mint string, trend domain.TrendAnalysis, m domain.MathematicalAnalysis) {
	switch {
	case trend.TrendStrength == domain.TrendStrongBullish, m.BuySignalStrength == domain.SignalStrongBuy, m.BuySignalStrength == domain.SignalBuyWeak:
		a.bus.PublishSignal(domain.TradingSignal{
			Kind: domain.SignalBuy,
			Buy: &domain.BuySignal{
				TokenMint:  mint,
				Confidence: m.CompositeVirality,
				Reason:     "analyzer: " + string(trend.TrendStrength) + "/" + string(m.BuySignalStrength),
				Source:     "analyzer",
				Urgency:    domain.UrgencyNormal,
			},
		})
		log.Info().Str("mint", mint).Str("trend", string(trend.TrendStrength)).Float64("virality", m.CompositeVirality).Msg("analyzer: buy signal")

	case trend.TrendStrength == domain.TrendStrongBearish, m.BuySignalStrength == domain.SignalStrongSell, m.BuySignalStrength == domain.SignalSellWeak:
		a.bus.PublishSignal(domain.TradingSignal{
			Kind: domain.SignalSell,
			Sell: &domain.SellSignal{
				TokenMint: mint,
				Reason:    "analyzer: " + string(trend.TrendStrength) + "/" + string(m.BuySignalStrength),
			},
		})
		log.Info().Str("mint", mint).Str("trend", string(trend.TrendStrength)).Msg("analyzer: sell signal")
	}
}
