// Package execution implements the execution orchestrator: the gate
// around buy-signal execution that enforces a global single-flight
// permit, emergency-stop and position-cap checks, entry/capital
// validation, and retrying submission with audit writes.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"copytrade-core/internal/capability"
	"copytrade-core/internal/domain"
	"copytrade-core/internal/eventbus"
	"copytrade-core/internal/position"
)

// EntryCriteria holds the configured thresholds the orchestrator
// validates a buy signal against before spending capital. Zero-value
// fields are treated as "not configured" and skipped.
type EntryCriteria struct {
	MinConfidence     float64
	MaxRugScore       float64
	MinVelocityPerMin float64
}

// Config is the orchestrator's config snapshot, refreshed by the
// external config manager between calls.
type Config struct {
	EmergencyStopPath   string
	MaxPositions        int
	TotalCapitalUSD     float64
	InvestedUSD         float64
	MainPositionPercent float64
	PreExecutionDelay   time.Duration
	MaxRetryAttempts    int
	RetryBackoffBase    time.Duration
	Entry               EntryCriteria
	BackupDir           string
}

// SignalContext carries the extra fields the orchestrator needs beyond
// the bare BuySignal to validate entry criteria.
type SignalContext struct {
	RugScore       float64
	VelocityPerMin float64
}

// Orchestrator gates buy execution behind a single-flight permit (an
// buffered capacity-1 channel acting as a non-blocking mutex) and a
// chain of entry-criteria and risk validations.
type Orchestrator struct {
	submitter capability.TradeSubmitter
	store     capability.Store
	tracker   *position.Tracker
	bus       *eventbus.Bus
	metrics   *Metrics

	permit chan struct{} // capacity 1: held while a buy is in flight

	mu  sync.RWMutex
	cfg Config
}

// New builds an orchestrator with its single-flight permit available. bus
// is nil-tolerant: when set, failed and rejected attempts are published as
// SystemAlerts; when nil, only logging happens.
func New(submitter capability.TradeSubmitter, store capability.Store, tracker *position.Tracker, cfg Config, bus *eventbus.Bus) *Orchestrator {
	return &Orchestrator{
		submitter: submitter,
		store:     store,
		tracker:   tracker,
		bus:       bus,
		metrics:   NewMetrics(),
		permit:    make(chan struct{}, 1),
		cfg:       cfg,
	}
}

func (o *Orchestrator) alert(level eventbus.AlertLevel, message string) {
	if o.bus == nil {
		return
	}
	o.bus.PublishAlert(eventbus.SystemAlert{Level: level, Source: "execution", Message: message})
}

// UpdateConfig installs a fresh config snapshot, read by the next call to
// Execute.
func (o *Orchestrator) UpdateConfig(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = cfg
}

func (o *Orchestrator) configSnapshot() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// Metrics exposes the orchestrator's latency/outcome counters.
func (o *Orchestrator) Metrics() *Metrics { return o.metrics }

// Execute is the sole entry point for acting on a Buy signal. It
// acquires the single-flight permit, runs every validation, and either
// submits the buy or returns a reason it did not. Only one call across
// any concurrent workload ever reaches the submit step at a time — every
// other concurrent caller is rejected immediately with ErrExecutionBusy.
func (o *Orchestrator) Execute(ctx context.Context, signal domain.BuySignal, sigCtx SignalContext) error {
	select {
	case o.permit <- struct{}{}:
	default:
		o.metrics.RecordRejectedBusy()
		return ErrExecutionBusy
	}
	defer func() { <-o.permit }()

	started := time.Now()
	err := o.executeLocked(ctx, signal, sigCtx)
	o.metrics.RecordAttempt(err == nil, time.Since(started).Milliseconds())
	return err
}

func (o *Orchestrator) executeLocked(ctx context.Context, signal domain.BuySignal, sigCtx SignalContext) error {
	cfg := o.configSnapshot()

	if o.emergencyStopped(cfg) {
		return ErrEmergencyStopped
	}

	if !o.underPositionCap(cfg) {
		return ErrPositionCapReached
	}

	if err := validateEntryCriteria(cfg.Entry, signal, sigCtx); err != nil {
		return err
	}

	if cfg.InvestedUSD >= cfg.TotalCapitalUSD {
		return ErrInsufficientCapital
	}

	available := cfg.TotalCapitalUSD - cfg.InvestedUSD
	size := available * (cfg.MainPositionPercent / 100)
	if size > available {
		size = available
	}
	if signal.MaxAmount > 0 && size > signal.MaxAmount {
		size = signal.MaxAmount
	}

	if cfg.PreExecutionDelay > 0 {
		select {
		case <-time.After(cfg.PreExecutionDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	result, err := o.submitWithRetries(ctx, cfg, signal.TokenMint, size)
	if err != nil {
		o.alert(eventbus.AlertError, fmt.Sprintf("buy failed for %s after retries (size $%s): %v", signal.TokenMint, humanize.FormatFloat("#,###.##", size), err))
		return fmt.Errorf("execution: submit failed after retries: %w", err)
	}

	o.writeAuditUnconditional(cfg, signal, size, result)
	o.alert(eventbus.AlertInfo, fmt.Sprintf("bought %s for $%s", signal.TokenMint, humanize.FormatFloat("#,###.##", size)))

	pos := &domain.Position{
		Mint:          signal.TokenMint,
		EntryPrice:    priceFromResult(result),
		EntryTime:     time.Now(),
		InvestedQuote: size,
		TokensHeld:    float64(result.OutputAmount),
		PeakPrice:     priceFromResult(result),
		CurrentPrice:  priceFromResult(result),
		Status:        domain.PositionOpen,
		EntryUSD:      size,
	}
	o.tracker.Open(pos)

	log.Info().Str("mint", signal.TokenMint).Float64("size", size).Str("tx", result.Signature).Msg("execution: buy executed")
	return nil
}

func priceFromResult(r capability.TxResult) float64 {
	if r.OutputAmount == 0 {
		return 0
	}
	return float64(r.InputAmount) / float64(r.OutputAmount)
}

func (o *Orchestrator) emergencyStopped(cfg Config) bool {
	if cfg.EmergencyStopPath == "" {
		return false
	}
	_, err := os.Stat(cfg.EmergencyStopPath)
	return err == nil
}

// underPositionCap consults the position tracker's open-position count
// against cfg.MaxPositions.
func (o *Orchestrator) underPositionCap(cfg Config) bool {
	if cfg.MaxPositions <= 0 {
		return true
	}
	coreCount := o.tracker.OpenCount()
	mirrorCount := coreCount // the tracker's own mirror file is the only mirror this core maintains
	authoritative := coreCount
	if mirrorCount > authoritative {
		authoritative = mirrorCount
	}
	return authoritative < cfg.MaxPositions
}

func validateEntryCriteria(criteria EntryCriteria, signal domain.BuySignal, sigCtx SignalContext) error {
	if criteria.MinConfidence > 0 && signal.Confidence < criteria.MinConfidence {
		return ErrEntryCriteriaNotMet
	}
	if criteria.MaxRugScore > 0 && sigCtx.RugScore > criteria.MaxRugScore {
		return ErrEntryCriteriaNotMet
	}
	if criteria.MinVelocityPerMin > 0 && sigCtx.VelocityPerMin < criteria.MinVelocityPerMin {
		return ErrEntryCriteriaNotMet
	}
	return nil
}

// submitWithRetries retries up to MaxRetryAttempts with linear backoff.
func (o *Orchestrator) submitWithRetries(ctx context.Context, cfg Config, mint string, amountUSD float64) (capability.TxResult, error) {
	const solMint = "So11111111111111111111111111111111111111112"
	amountLamports := uint64(amountUSD * 1e9)

	attempts := cfg.MaxRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := o.submitter.SubmitSwap(ctx, solMint, mint, amountLamports, 100)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Str("mint", mint).Msg("execution: submit attempt failed")

		if attempt < attempts-1 {
			backoff := cfg.RetryBackoffBase * time.Duration(attempt+1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return capability.TxResult{}, ctx.Err()
			}
		}
	}
	return capability.TxResult{}, lastErr
}

// writeAuditUnconditional writes the per-trade audit/backup file before
// state updates are considered durable, regardless of submission success
// already having been confirmed by the caller.
func (o *Orchestrator) writeAuditUnconditional(cfg Config, signal domain.BuySignal, size float64, result capability.TxResult) {
	if cfg.BackupDir == "" {
		return
	}
	attemptID := uuid.New().String()
	record := map[string]any{
		"attempt_id": attemptID,
		"mint":       signal.TokenMint,
		"size_usd":   size,
		"signature":  result.Signature,
		"timestamp":  time.Now().Format(time.RFC3339Nano),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("execution: audit marshal failed")
		return
	}
	path := filepath.Join(cfg.BackupDir, fmt.Sprintf("TRADE_BACKUP_%s.json", attemptID))
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		log.Error().Err(err).Msg("execution: audit directory create failed")
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", path).Msg("execution: audit write failed")
	}
}
