// Package position implements the position & risk core: an
// in-memory position set with a durable JSON mirror file, and the exit
// policy the monitor loop evaluates against the external quote and sell
// capabilities.
package position

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"copytrade-core/internal/domain"
)

// Tracker owns the in-memory position set and its durable mirror. Only
// the tracker mutates position state; every other component reads
// snapshots.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
	mirrorPath string
}

// NewTracker creates a tracker backed by a JSON mirror file at path. On
// construction it attempts to load any existing mirror; a missing or
// corrupt file starts empty rather than failing construction (the mirror
// is a cache of truth the monitor loop rebuilds through its next tick,
// not the sole source of truth for an in-flight process).
func NewTracker(mirrorPath string) *Tracker {
	t := &Tracker{
		positions:  make(map[string]*domain.Position),
		mirrorPath: mirrorPath,
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.mirrorPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", t.mirrorPath).Msg("position: mirror read failed, starting empty")
		}
		return
	}
	var loaded map[string]*domain.Position
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warn().Err(err).Str("path", t.mirrorPath).Msg("position: mirror corrupt, starting empty")
		return
	}
	t.positions = loaded
	log.Info().Int("count", len(loaded)).Msg("position: loaded mirror file")
}

// persist re-serializes the whole position set and fsync-durable writes
// it. On failure the in-memory state is retained and the failure is
// logged loudly: a degraded mode, not a panic.
func (t *Tracker) persist() {
	data, err := json.MarshalIndent(t.positions, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("position: mirror marshal failed")
		return
	}

	dir := filepath.Dir(t.mirrorPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("position: mirror directory create failed")
		return
	}

	tmp := t.mirrorPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		log.Error().Err(err).Msg("position: mirror write failed, retaining in-memory state")
		return
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		log.Error().Err(err).Msg("position: mirror write failed, retaining in-memory state")
		return
	}
	if err := f.Sync(); err != nil {
		f.Close()
		log.Error().Err(err).Msg("position: mirror fsync failed, retaining in-memory state")
		return
	}
	f.Close()
	if err := os.Rename(tmp, t.mirrorPath); err != nil {
		log.Error().Err(err).Msg("position: mirror rename failed, retaining in-memory state")
	}
}

// Open installs a newly-opened position, created on successful buy
// submission confirmation, and persists the mirror.
func (t *Tracker) Open(p *domain.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[p.Mint] = p
	t.persist()
}

// Get returns a read snapshot of a tracked position (open or closed).
func (t *Tracker) Get(mint string) (domain.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[mint]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// All returns read snapshots of every tracked position (open or closed;
// closed positions are retained for audit).
func (t *Tracker) All() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

// OpenCount returns the number of positions not yet Closed.
func (t *Tracker) OpenCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.positions {
		if p.Status != domain.PositionClosed {
			n++
		}
	}
	return n
}

// UpdatePrice mutates a position's current/peak price and USD figures
// after a fresh quote, preserving the invariant that peak_price never
// decreases once a higher price has been observed.
func (t *Tracker) UpdatePrice(mint string, currentPrice, currentValueUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[mint]
	if !ok {
		return
	}
	p.CurrentPrice = currentPrice
	if currentPrice > p.PeakPrice {
		p.PeakPrice = currentPrice
	}
	p.CurrentValueUSD = currentValueUSD
	p.PnLUSD = currentValueUSD - p.EntryUSD
	t.persist()
}

// ApplyExit mutates a position after a successful sell: tokens_held is
// reduced by the exited fraction; status becomes Closed at 100%,
// PartialExit otherwise. tokens_held is never negative.
func (t *Tracker) ApplyExit(mint string, exitFraction float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[mint]
	if !ok {
		return
	}
	if exitFraction > 1 {
		exitFraction = 1
	}
	if exitFraction < 0 {
		exitFraction = 0
	}
	p.TokensHeld -= p.TokensHeld * exitFraction
	if p.TokensHeld < 0 {
		p.TokensHeld = 0
	}
	if exitFraction >= 1 || p.TokensHeld == 0 {
		p.TokensHeld = 0
		p.Status = domain.PositionClosed
	} else {
		p.Status = domain.PositionPartialExit
	}
	t.persist()
}

// Age returns how long a position has been open.
func Age(p domain.Position, now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
