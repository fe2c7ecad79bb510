// Package eventbus implements the typed, many-producer/many-consumer
// broadcast channels that decouple every other component. Each channel
// is independently buffered; slow consumers observe lag (oldest-first
// drop) rather than blocking producers.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"copytrade-core/internal/domain"
)

const (
	marketEventsCap  = 50_000
	tradingSignalsCap = 10_000
	walletEventsCap  = 5_000
	systemAlertsCap  = 1_000
)

// AlertLevel mirrors zerolog's severity vocabulary for SystemAlert events.
type AlertLevel string

const (
	AlertInfo  AlertLevel = "info"
	AlertWarn  AlertLevel = "warn"
	AlertError AlertLevel = "error"
)

// SystemAlert is how errors and noteworthy conditions become observable:
// the bus never carries errors directly, components convert them into
// alerts published on the system_alerts channel.
type SystemAlert struct {
	Level   AlertLevel
	Source  string
	Message string
	Fields  map[string]string
}

// WalletEvent carries an insider-wallet-relevant action (a swap performed
// by a tracked address) from the decoder/analyzer path to the
// copy-trading engine.
type WalletEvent struct {
	Address string
	Mint    string
	Event   domain.SwapDetected
}

// channel[T] is one broadcast channel: a set of subscriber queues plus
// publish/subscriber counters.
type channel[T any] struct {
	mu          sync.RWMutex
	subscribers map[int]chan T
	nextID      int
	capacity    int
	published   atomic.Uint64
}

func newChannel[T any](capacity int) *channel[T] {
	return &channel[T]{subscribers: make(map[int]chan T), capacity: capacity}
}

func (c *channel[T]) subscribe() (int, <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan T, c.capacity)
	c.subscribers[id] = ch
	return id, ch
}

func (c *channel[T]) unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subscribers[id]; ok {
		delete(c.subscribers, id)
		close(ch)
	}
}

// publish fans out to every subscriber without blocking. A full
// subscriber queue drops its oldest message (lag) to make room, per the
// bus's back-pressure contract: producers never block.
func (c *channel[T]) publish(v T, name string) {
	c.published.Add(1)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, ch := range c.subscribers {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
				log.Warn().Str("channel", name).Int("subscriber", id).Msg("bus subscriber still full after lag-drop, message discarded")
			}
		}
	}
}

func (c *channel[T]) subscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

// Bus is the event bus: four independently-buffered typed channels.
type Bus struct {
	market   *channel[domain.MarketEvent]
	signals  *channel[domain.TradingSignal]
	wallets  *channel[WalletEvent]
	alerts   *channel[SystemAlert]
}

// New creates an empty bus. Subscribers must join before events are
// published to receive them — there is no replay.
func New() *Bus {
	return &Bus{
		market:  newChannel[domain.MarketEvent](marketEventsCap),
		signals: newChannel[domain.TradingSignal](tradingSignalsCap),
		wallets: newChannel[WalletEvent](walletEventsCap),
		alerts:  newChannel[SystemAlert](systemAlertsCap),
	}
}

// PublishMarketEvent fans a decoded event out to every market_events
// subscriber. FIFO is preserved per-producer: callers from one goroutine
// retain order with each other.
func (b *Bus) PublishMarketEvent(e domain.MarketEvent) { b.market.publish(e, "market_events") }

// SubscribeMarketEvents joins the market_events channel. Call the
// returned cancel function to leave.
func (b *Bus) SubscribeMarketEvents() (<-chan domain.MarketEvent, func()) {
	id, ch := b.market.subscribe()
	return ch, func() { b.market.unsubscribe(id) }
}

// PublishSignal fans a trading signal out to every trading_signals
// subscriber.
func (b *Bus) PublishSignal(s domain.TradingSignal) { b.signals.publish(s, "trading_signals") }

func (b *Bus) SubscribeSignals() (<-chan domain.TradingSignal, func()) {
	id, ch := b.signals.subscribe()
	return ch, func() { b.signals.unsubscribe(id) }
}

func (b *Bus) PublishWalletEvent(w WalletEvent) { b.wallets.publish(w, "wallet_events") }

func (b *Bus) SubscribeWalletEvents() (<-chan WalletEvent, func()) {
	id, ch := b.wallets.subscribe()
	return ch, func() { b.wallets.unsubscribe(id) }
}

func (b *Bus) PublishAlert(a SystemAlert) {
	switch a.Level {
	case AlertError:
		log.Error().Str("source", a.Source).Msg(a.Message)
	case AlertWarn:
		log.Warn().Str("source", a.Source).Msg(a.Message)
	default:
		log.Info().Str("source", a.Source).Msg(a.Message)
	}
	b.alerts.publish(a, "system_alerts")
}

func (b *Bus) SubscribeAlerts() (<-chan SystemAlert, func()) {
	id, ch := b.alerts.subscribe()
	return ch, func() { b.alerts.unsubscribe(id) }
}

// ChannelStats is a snapshot of one channel's counters.
type ChannelStats struct {
	Name        string
	Published   uint64
	Subscribers int
	Healthy     bool // subscribers > 0
}

// Stats returns a snapshot for all four channels, used by the monitor
// endpoint and by tests asserting on publish counts.
func (b *Bus) Stats() []ChannelStats {
	mk := func(name string, published uint64, subs int) ChannelStats {
		return ChannelStats{Name: name, Published: published, Subscribers: subs, Healthy: subs > 0}
	}
	return []ChannelStats{
		mk("market_events", b.market.published.Load(), b.market.subscriberCount()),
		mk("trading_signals", b.signals.published.Load(), b.signals.subscriberCount()),
		mk("wallet_events", b.wallets.published.Load(), b.wallets.subscriberCount()),
		mk("system_alerts", b.alerts.published.Load(), b.alerts.subscriberCount()),
	}
}
