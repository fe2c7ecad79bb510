package execution

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"copytrade-core/internal/capability"
	"copytrade-core/internal/domain"
	"copytrade-core/internal/position"
)

type fakeSubmitter struct {
	delay      time.Duration
	failTimes  int
	calls      atomic.Int64
}

func (f *fakeSubmitter) SubmitSwap(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (capability.TxResult, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if int(n) <= f.failTimes {
		return capability.TxResult{}, context.DeadlineExceeded
	}
	return capability.TxResult{Signature: "sig", InputAmount: amount, OutputAmount: amount * 1000}, nil
}

func noopStore() capability.Store { return nil }

func baseCfg(dir string) Config {
	return Config{
		MaxPositions:        10,
		TotalCapitalUSD:     1000,
		InvestedUSD:         0,
		MainPositionPercent: 10,
		MaxRetryAttempts:    3,
		RetryBackoffBase:    time.Millisecond,
		BackupDir:           filepath.Join(dir, "backups"),
	}
}

func TestExecuteSingleFlightRejectsConcurrentCallers(t *testing.T) {
	dir := t.TempDir()
	tracker := position.NewTracker(filepath.Join(dir, "positions.json"))
	sub := &fakeSubmitter{delay: 100 * time.Millisecond}
	o := New(sub, noopStore(), tracker, baseCfg(dir), nil)

	var wg sync.WaitGroup
	results := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Execute(context.Background(), domain.BuySignal{TokenMint: "M" + string(rune('A'+i)), MaxAmount: 50}, SignalContext{})
		}(i)
		time.Sleep(5 * time.Millisecond) // stagger so only the first wins the permit
	}
	wg.Wait()

	busyCount := 0
	successCount := 0
	for _, err := range results {
		if err == ErrExecutionBusy {
			busyCount++
		} else if err == nil {
			successCount++
		}
	}
	require.Equal(t, 1, successCount)
	require.Equal(t, 2, busyCount)
}

func TestExecuteEmergencyStopBlocksAllBuys(t *testing.T) {
	dir := t.TempDir()
	tracker := position.NewTracker(filepath.Join(dir, "positions.json"))
	sub := &fakeSubmitter{}
	cfg := baseCfg(dir)
	cfg.EmergencyStopPath = filepath.Join(dir, "EMERGENCY_STOP")
	require.NoError(t, os.WriteFile(cfg.EmergencyStopPath, []byte{}, 0o644))

	o := New(sub, noopStore(), tracker, cfg, nil)
	err := o.Execute(context.Background(), domain.BuySignal{TokenMint: "M"}, SignalContext{})
	require.ErrorIs(t, err, ErrEmergencyStopped)
}

func TestExecutePositionCapBlocksBuys(t *testing.T) {
	dir := t.TempDir()
	tracker := position.NewTracker(filepath.Join(dir, "positions.json"))
	tracker.Open(&domain.Position{Mint: "existing", Status: domain.PositionOpen, EntryTime: time.Now()})

	cfg := baseCfg(dir)
	cfg.MaxPositions = 1
	o := New(&fakeSubmitter{}, noopStore(), tracker, cfg, nil)

	err := o.Execute(context.Background(), domain.BuySignal{TokenMint: "new"}, SignalContext{})
	require.ErrorIs(t, err, ErrPositionCapReached)
}

func TestExecuteInsufficientCapitalBlocksBuys(t *testing.T) {
	dir := t.TempDir()
	tracker := position.NewTracker(filepath.Join(dir, "positions.json"))
	cfg := baseCfg(dir)
	cfg.InvestedUSD = cfg.TotalCapitalUSD

	o := New(&fakeSubmitter{}, noopStore(), tracker, cfg, nil)
	err := o.Execute(context.Background(), domain.BuySignal{TokenMint: "new"}, SignalContext{})
	require.ErrorIs(t, err, ErrInsufficientCapital)
}

func TestExecuteEntryCriteriaRejectsLowConfidence(t *testing.T) {
	dir := t.TempDir()
	tracker := position.NewTracker(filepath.Join(dir, "positions.json"))
	cfg := baseCfg(dir)
	cfg.Entry.MinConfidence = 0.9

	o := New(&fakeSubmitter{}, noopStore(), tracker, cfg, nil)
	err := o.Execute(context.Background(), domain.BuySignal{TokenMint: "new", Confidence: 0.5}, SignalContext{})
	require.ErrorIs(t, err, ErrEntryCriteriaNotMet)
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	tracker := position.NewTracker(filepath.Join(dir, "positions.json"))
	sub := &fakeSubmitter{failTimes: 2}
	o := New(sub, noopStore(), tracker, baseCfg(dir), nil)

	err := o.Execute(context.Background(), domain.BuySignal{TokenMint: "new", MaxAmount: 50}, SignalContext{})
	require.NoError(t, err)
	require.Equal(t, int64(3), sub.calls.Load())

	p, ok := tracker.Get("new")
	require.True(t, ok)
	require.Equal(t, domain.PositionOpen, p.Status)
}

func TestExecuteExhaustsRetriesReturnsError(t *testing.T) {
	dir := t.TempDir()
	tracker := position.NewTracker(filepath.Join(dir, "positions.json"))
	sub := &fakeSubmitter{failTimes: 10}
	o := New(sub, noopStore(), tracker, baseCfg(dir), nil)

	err := o.Execute(context.Background(), domain.BuySignal{TokenMint: "new", MaxAmount: 50}, SignalContext{})
	require.Error(t, err)
	require.Equal(t, 0, tracker.OpenCount())
}
