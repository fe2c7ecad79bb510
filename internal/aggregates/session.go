package aggregates

import (
	"context"
	"time"

	"copytrade-core/internal/capability"
)

// Session is a single run's bookkeeping record
// opened once at process startup and closed once at shutdown, mirroring
// the position core's single-writer discipline.
type Session struct {
	ID               int64
	StartedAt        time.Time
	EndedAt          time.Time
	StartingCapital  float64
	EndingCapital    float64
	Trades           int
}

// StartSession opens a new session record via the store and returns its
// handle. Call End on the returned handle at shutdown.
func StartSession(ctx context.Context, store capability.Store, startingCapitalUSD float64) (*Session, error) {
	id, err := store.RecordSessionStart(ctx, startingCapitalUSD)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:              id,
		StartedAt:       time.Now(),
		StartingCapital: startingCapitalUSD,
	}, nil
}

// End closes the session, recording the ending capital and trade count.
func (s *Session) End(ctx context.Context, store capability.Store, endingCapitalUSD float64, trades int) error {
	s.EndedAt = time.Now()
	s.EndingCapital = endingCapitalUSD
	s.Trades = trades
	return store.RecordSessionEnd(ctx, s.ID, endingCapitalUSD, trades)
}
