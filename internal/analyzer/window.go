// Package analyzer implements the sliding-window analyzer: per-mint
// time-indexed windows of recent market activity, periodically scored
// into trend and mathematical analyses that drive buy/sell signals.
package analyzer

import (
	"time"

	"copytrade-core/internal/domain"
)

// retention is how far back a window keeps points relative to its latest
// entry: 5 minutes.
const retention = 5 * time.Minute

// sweepAge is the window lifetime past which the analyzer drops it
// entirely, regardless of retention trimming.
const sweepAge = 10 * time.Minute

// minPointsForScoring is the "sufficient data" floor below which a tick
// skips scoring a window rather than producing a noisy result.
const minPointsForScoring = 3

// window holds the ordered points for one mint. Points are appended in
// arrival order and trimmed from the front on each append.
type window struct {
	mint      string
	points    []domain.TimeSeriesPoint
	createdAt time.Time
}

func newWindow(mint string, createdAt time.Time) *window {
	return &window{mint: mint, points: make([]domain.TimeSeriesPoint, 0, 64), createdAt: createdAt}
}

// append adds a point and trims anything older than retention relative to
// the newest point.
func (w *window) append(p domain.TimeSeriesPoint) {
	w.points = append(w.points, p)
	cutoff := p.T.Add(-retention)
	i := 0
	for i < len(w.points) && w.points[i].T.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.points = append(w.points[:0], w.points[i:]...)
	}
}

func (w *window) age(now time.Time) time.Duration { return now.Sub(w.createdAt) }

func (w *window) hasSufficientData() bool { return len(w.points) >= minPointsForScoring }
