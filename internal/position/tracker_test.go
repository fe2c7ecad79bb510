package position

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"copytrade-core/internal/domain"
)

func TestTrackerOpenAndPersistRoundTrips(t *testing.T) {
	dir := t.TempDir()
	mirror := filepath.Join(dir, "positions.json")

	t1 := NewTracker(mirror)
	t1.Open(&domain.Position{Mint: "M1", EntryPrice: 1, EntryTime: time.Now(), TokensHeld: 100, Status: domain.PositionOpen})

	t2 := NewTracker(mirror)
	p, ok := t2.Get("M1")
	require.True(t, ok)
	require.Equal(t, "M1", p.Mint)
	require.Equal(t, 100.0, p.TokensHeld)
}

func TestTrackerMissingMirrorStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(filepath.Join(dir, "missing.json"))
	require.Empty(t, tr.All())
}

func TestUpdatePricePeakNeverDecreases(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(filepath.Join(dir, "positions.json"))
	tr.Open(&domain.Position{Mint: "M1", EntryPrice: 1, PeakPrice: 1, EntryTime: time.Now(), Status: domain.PositionOpen})

	tr.UpdatePrice("M1", 2.0, 200)
	p, _ := tr.Get("M1")
	require.Equal(t, 2.0, p.PeakPrice)

	tr.UpdatePrice("M1", 1.5, 150)
	p, _ = tr.Get("M1")
	require.Equal(t, 2.0, p.PeakPrice) // peak does not fall back down
	require.Equal(t, 1.5, p.CurrentPrice)
}

func TestApplyExitFullCloses(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(filepath.Join(dir, "positions.json"))
	tr.Open(&domain.Position{Mint: "M1", TokensHeld: 100, Status: domain.PositionOpen})

	tr.ApplyExit("M1", 1.0)
	p, _ := tr.Get("M1")
	require.Equal(t, domain.PositionClosed, p.Status)
	require.Equal(t, 0.0, p.TokensHeld)
}

func TestApplyExitPartialKeepsOpen(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(filepath.Join(dir, "positions.json"))
	tr.Open(&domain.Position{Mint: "M1", TokensHeld: 100, Status: domain.PositionOpen})

	tr.ApplyExit("M1", 0.5)
	p, _ := tr.Get("M1")
	require.Equal(t, domain.PositionPartialExit, p.Status)
	require.Equal(t, 50.0, p.TokensHeld)
}

func TestOpenCountExcludesClosed(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(filepath.Join(dir, "positions.json"))
	tr.Open(&domain.Position{Mint: "M1", TokensHeld: 100, Status: domain.PositionOpen})
	tr.Open(&domain.Position{Mint: "M2", TokensHeld: 0, Status: domain.PositionClosed})

	require.Equal(t, 1, tr.OpenCount())
}
