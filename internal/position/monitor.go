package position

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-core/internal/domain"
)

// monitorTick is the polling cadence for open-position mark-to-market checks.
const monitorTick = 5 * time.Second

// QuoteCapability resolves a position's current mark-to-market price and
// USD value. Concrete backends query a DEX aggregator; the core only
// calls Quote.
type QuoteCapability interface {
	Quote(ctx context.Context, mint string, tokensHeld float64) (price, valueUSD float64, err error)
}

// SellCapability executes an exit for a fraction of a position's tokens.
type SellCapability interface {
	Sell(ctx context.Context, mint string, fraction float64) error
}

// Monitor drives the periodic exit-policy evaluation loop over every
// open position.
type Monitor struct {
	tracker *Tracker
	quotes  QuoteCapability
	seller  SellCapability
	cfg     RiskConfig
}

// NewMonitor binds a monitor to its tracker and external capabilities.
func NewMonitor(tracker *Tracker, quotes QuoteCapability, seller SellCapability, cfg RiskConfig) *Monitor {
	return &Monitor{tracker: tracker, quotes: quotes, seller: seller, cfg: cfg}
}

// Run ticks every 5s until ctx is canceled, evaluating the exit policy
// for every open position.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	for _, p := range m.tracker.All() {
		if p.Status == domain.PositionClosed {
			continue
		}
		m.evaluateOne(ctx, p)
	}
}

func (m *Monitor) evaluateOne(ctx context.Context, p domain.Position) {
	price, valueUSD, err := m.quotes.Quote(ctx, p.Mint, p.TokensHeld)
	if err != nil {
		log.Warn().Err(err).Str("mint", p.Mint).Msg("position: quote failed, skipping this tick")
		return
	}
	m.tracker.UpdatePrice(p.Mint, price, valueUSD)

	refreshed, ok := m.tracker.Get(p.Mint)
	if !ok {
		return
	}

	decision := Evaluate(refreshed, m.cfg, time.Now())
	if decision.Kind == ExitNone {
		return
	}

	if err := m.seller.Sell(ctx, p.Mint, decision.Percentage); err != nil {
		log.Warn().Err(err).Str("mint", p.Mint).Str("exit_kind", string(decision.Kind)).Msg("position: exit sell failed, retrying next tick")
		return
	}

	m.tracker.ApplyExit(p.Mint, decision.Percentage)
	log.Info().Str("mint", p.Mint).Str("exit_kind", string(decision.Kind)).Float64("percentage", decision.Percentage).Msg("position: exit executed")
}
