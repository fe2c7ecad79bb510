package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the connection state machine: Disconnected -> Connecting ->
// Connected -> {Reconnecting | Failed}.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Config configures the ingester's endpoints and timing.
type Config struct {
	PrimaryURL         string
	BackupURLs         []string
	ConnectTimeout     time.Duration
	MaxReconnectAttempt int // not read by the ingester: endpoint-level retries are infinite
	ReconnectDelay     time.Duration
	HeartbeatInterval  time.Duration
}

// Subscription describes one fixed subscription the ingester issues on
// every successful connect.
type Subscription struct {
	Method string
	Params []interface{}
}

// Ingester maintains one active connection across a primary + N backup
// endpoints, re-issuing the fixed subscription set on every reconnect and
// never reusing subscription IDs across connections.
type Ingester struct {
	cfg           Config
	subscriptions []Subscription

	mu            sync.RWMutex
	state         State
	endpointIdx   int
	cur           *client
	subIDs        map[int]uint64 // index into subscriptions -> live subscription id

	out    chan Frame
	stopCh chan struct{}
}

// New creates an ingester for the given endpoints and fixed subscription
// set (slot updates, a fixed account update, one programSubscribe per
// supported DEX — the caller assembles this list).
func New(cfg Config, subscriptions []Subscription) *Ingester {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	return &Ingester{
		cfg:           cfg,
		subscriptions: subscriptions,
		state:         StateDisconnected,
		subIDs:        make(map[int]uint64),
		out:           make(chan Frame, 8192),
		stopCh:        make(chan struct{}),
	}
}

// Frames returns the stream of raw frames paired with the subscription
// that delivered them. Frames are never dropped silently; unparseable
// ones are logged and skipped by the client before reaching this channel.
func (ing *Ingester) Frames() <-chan Frame { return ing.out }

// State returns the current connection state.
func (ing *Ingester) State() State {
	ing.mu.RLock()
	defer ing.mu.RUnlock()
	return ing.state
}

func (ing *Ingester) setState(s State) {
	ing.mu.Lock()
	ing.state = s
	ing.mu.Unlock()
}

// endpoints in order: primary then backups, used for round-robin rotation.
func (ing *Ingester) endpoints() []string {
	return append([]string{ing.cfg.PrimaryURL}, ing.cfg.BackupURLs...)
}

// Run drives the connect/subscribe/heartbeat/reconnect loop until ctx is
// canceled. It never returns early on connection failure: endpoint-level
// retries are infinite, rotating primary -> backups -> wrap.
func (ing *Ingester) Run(ctx context.Context) {
	defer close(ing.out)
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ing.setState(StateConnecting)
		endpoints := ing.endpoints()
		url := endpoints[ing.endpointIdx%len(endpoints)]

		c, err := dial(url, ing.cfg.ConnectTimeout)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", url).Msg("ingest: connect failed")
			ing.setState(StateFailed)
			ing.endpointIdx++
			attempt++
			if attempt%len(endpoints) == 0 {
				// every endpoint failed this round-trip: back off before retrying
				select {
				case <-ctx.Done():
					return
				case <-time.After(ing.cfg.ReconnectDelay):
				}
			}
			ing.setState(StateReconnecting)
			continue
		}
		attempt = 0

		ing.mu.Lock()
		ing.cur = c
		ing.subIDs = make(map[int]uint64)
		ing.mu.Unlock()

		if err := ing.subscribeAll(c); err != nil {
			log.Warn().Err(err).Str("endpoint", url).Msg("ingest: subscription setup failed")
			c.close()
			ing.endpointIdx++
			ing.setState(StateReconnecting)
			continue
		}

		ing.setState(StateConnected)
		log.Info().Str("endpoint", url).Int("subscriptions", len(ing.subscriptions)).Msg("ingest: connected and subscribed")

		ing.pump(ctx, c)

		ing.setState(StateReconnecting)
		ing.endpointIdx++
	}
}

// subscribeAll issues the fixed subscription set against a freshly
// connected client. Subscription reconfirmation happens on every
// reconnect; the resulting ids are never reused across connections since
// they come from a brand-new client.
func (ing *Ingester) subscribeAll(c *client) error {
	for i, sub := range ing.subscriptions {
		subID, err := c.subscribe(sub.Method, sub.Params, ing.cfg.ConnectTimeout)
		if err != nil {
			return err
		}
		ing.mu.Lock()
		ing.subIDs[i] = subID
		ing.mu.Unlock()
	}
	return nil
}

// pump forwards frames and drives the heartbeat until the connection
// drops, the context is canceled, or two consecutive heartbeats go
// unanswered.
func (ing *Ingester) pump(ctx context.Context, c *client) {
	ticker := time.NewTicker(ing.cfg.HeartbeatInterval)
	defer ticker.Stop()

	missedPongs := 0
	c.conn.SetPongHandler(func(string) error { missedPongs = 0; return nil })

	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case f, ok := <-c.frames:
			if !ok {
				return // connection closed by peer or read error
			}
			select {
			case ing.out <- f:
			case <-ctx.Done():
				c.close()
				return
			}
		case <-ticker.C:
			if missedPongs >= 2 {
				log.Warn().Msg("ingest: heartbeat timeout, forcing reconnect")
				c.close()
				return
			}
			if err := c.ping(); err != nil {
				c.close()
				return
			}
			missedPongs++
		}
	}
}

// Stop signals the ingester to shut down. Callers should prefer
// canceling the context passed to Run; Stop exists for callers that
// don't hold that context.
func (ing *Ingester) Stop() {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	if ing.cur != nil {
		ing.cur.close()
	}
}
