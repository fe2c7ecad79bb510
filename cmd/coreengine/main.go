// Command coreengine wires every component — ingest, decode, event bus,
// analyzer, insider cache/detector, copy-trading engine, position
// tracker/monitor, execution orchestrator, storage, and the diagnostics
// server — into one running process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"copytrade-core/internal/aggregates"
	"copytrade-core/internal/analyzer"
	"copytrade-core/internal/blockchain"
	"copytrade-core/internal/config"
	"copytrade-core/internal/copytrade"
	"copytrade-core/internal/decode"
	"copytrade-core/internal/domain"
	"copytrade-core/internal/eventbus"
	"copytrade-core/internal/execadapter"
	"copytrade-core/internal/execution"
	"copytrade-core/internal/health"
	"copytrade-core/internal/ingest"
	"copytrade-core/internal/insider"
	"copytrade-core/internal/jupiter"
	"copytrade-core/internal/monitor"
	"copytrade-core/internal/position"
	"copytrade-core/internal/storage"
)

// solMint is the native SOL wrapped mint address, every adapter's quote
// currency.
const solMint = "So11111111111111111111111111111111111111112"

// knownProgramIDs mirrors internal/decode's supported DEX program owners,
// used to build the ingester's fixed programSubscribe set.
var knownProgramIDs = map[domain.DexKind]string{
	domain.DexRaydium:   "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
	domain.DexOrca:      "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP",
	domain.DexJupiter:   "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
	domain.DexPumpStyle: "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
}

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := run(*configPath); err != nil {
		log.Error().Err(err).Msg("coreengine: fatal startup error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfgMgr, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	cfg := cfgMgr.Get()

	db, err := storage.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := storage.NewStore(db)

	wallet, err := blockchain.NewWallet(cfgMgr.GetPrivateKey())
	if err != nil {
		return err
	}
	rpc := blockchain.NewRPCClient(cfgMgr.GetShyftRPCURL(), cfgMgr.GetFallbackRPCURL(), cfgMgr.GetShyftAPIKey())
	txBuilder := blockchain.NewTransactionBuilder(wallet, 0)
	balances := blockchain.NewBalanceTracker(wallet, rpc)

	jupiterClient := jupiter.NewClient(cfg.Jupiter.QuoteAPIURL, cfg.Jupiter.SlippageBps, time.Duration(cfg.Jupiter.TimeoutSeconds)*time.Second)
	jupiterClient.SetSimulation(cfg.Trading.SimulationMode, 1.0)
	submitter := execadapter.NewJupiterSubmitter(jupiterClient, wallet, txBuilder, rpc)

	bus := eventbus.New()
	cache := insider.NewCache(insider.DefaultCacheConfig())
	tracker := position.NewTracker(positionMirrorPath(cfg.Storage.SQLitePath))

	riskCfg := position.RiskConfig{
		StrategyTimeHorizon:   time.Duration(cfg.Strategy.TimeHorizonHours * float64(time.Hour)),
		ForceExitHours:        cfg.RiskManagement.ForceExitHours,
		MaxLossUSD:            cfg.RiskManagement.MaxLossUSD,
		MinHoldMinutes:        cfg.RiskManagement.MinHoldMinutes,
		TrailingStopPercent:   cfg.RiskManagement.TrailingStopPercent,
		FinalTargetMultiplier: cfg.RiskManagement.FinalTargetMultiplier,
		TierMultipliers:       cfg.RiskManagement.TierMultipliers,
		TierExitPercents:      cfg.RiskManagement.TierExitPercents,
		MaxLossPerPositionPct: cfg.RiskManagement.MaxLossPerPositionPct,
	}
	quoteAdapter := execadapter.NewQuoteAdapter(jupiterClient, solMint, func() float64 { return fallbackSolUSDRate })
	sellAdapter := execadapter.NewSellAdapter(submitter, tracker, solMint, cfg.Jupiter.SlippageBps)
	posMonitor := position.NewMonitor(tracker, quoteAdapter, sellAdapter, riskCfg)

	orchestratorCfg := execution.Config{
		EmergencyStopPath:   cfg.RiskManagement.EmergencyStopPath,
		MaxPositions:        cfg.RiskManagement.MaxPositions,
		TotalCapitalUSD:     cfg.Allocation.TotalCapitalUSD,
		MainPositionPercent: cfg.Allocation.MainPositionPercent,
		PreExecutionDelay:   time.Duration(cfg.Trading.PreExecutionDelayMs) * time.Millisecond,
		MaxRetryAttempts:    cfg.Trading.MaxRetryAttempts,
		RetryBackoffBase:    time.Duration(cfg.Trading.RetryBackoffBaseMs) * time.Millisecond,
		Entry: execution.EntryCriteria{
			MinConfidence:     cfg.EntryCriteria.MinConfidence,
			MaxRugScore:       cfg.EntryCriteria.MaxRugScore,
			MinVelocityPerMin: cfg.EntryCriteria.MinVelocityPerMin,
		},
		BackupDir: cfg.Storage.BackupDir,
	}
	orchestrator := execution.New(submitter, store, tracker, orchestratorCfg, bus)
	cfgMgr.SetOnChange(func(fresh *config.Config) {
		orchestrator.UpdateConfig(execution.Config{
			EmergencyStopPath:   fresh.RiskManagement.EmergencyStopPath,
			MaxPositions:        fresh.RiskManagement.MaxPositions,
			TotalCapitalUSD:     fresh.Allocation.TotalCapitalUSD,
			MainPositionPercent: fresh.Allocation.MainPositionPercent,
			PreExecutionDelay:   time.Duration(fresh.Trading.PreExecutionDelayMs) * time.Millisecond,
			MaxRetryAttempts:    fresh.Trading.MaxRetryAttempts,
			RetryBackoffBase:    time.Duration(fresh.Trading.RetryBackoffBaseMs) * time.Millisecond,
			Entry: execution.EntryCriteria{
				MinConfidence:     fresh.EntryCriteria.MinConfidence,
				MaxRugScore:       fresh.EntryCriteria.MaxRugScore,
				MinVelocityPerMin: fresh.EntryCriteria.MinVelocityPerMin,
			},
			BackupDir: fresh.Storage.BackupDir,
		})
	})

	copyEngine := copytrade.New(copytrade.Config{
		Enabled:            cfg.Trading.AutoTradingEnabled,
		MaxDailyCopyTrades: cfg.Allocation.MaxDailyCopyTrades,
	}, cache, store, bus, tracker)

	az := analyzer.New(bus, cache)
	detector := insider.NewDetector(store, cache)

	ingestCfg := ingest.Config{
		PrimaryURL:        cfgMgr.GetShyftWSURL(),
		BackupURLs:        []string{cfgMgr.GetFallbackRPCURL()},
		ReconnectDelay:    time.Duration(cfg.WebSocket.ReconnectDelayMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(cfg.WebSocket.PingIntervalMs) * time.Millisecond,
	}
	ingester := ingest.New(ingestCfg, ingest.DefaultSubscriptions(wallet.Address(), knownProgramIDs))

	monitorSrv := monitor.New(cfg.Monitor.ListenHost, cfg.Monitor.ListenPort, bus, tracker, cache, orchestrator.Metrics())
	checker := health.NewChecker(cfgMgr.GetShyftRPCURL(), monitorAddr(cfg.Monitor.ListenHost, cfg.Monitor.ListenPort))

	session, err := aggregates.StartSession(context.Background(), store, cfg.Allocation.TotalCapitalUSD)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ingester.Run(ctx)
	go pumpDecodedEvents(ctx, ingester, bus, cache)
	go az.Run(ctx)
	go detector.Run(ctx)
	go copyEngine.Run(ctx)
	go posMonitor.Run(ctx)
	go consumeTradingSignals(ctx, bus, orchestrator, sellAdapter)
	go refreshBalancePeriodically(ctx, balances, cfgMgr.GetBalanceRefresh())
	checker.Start(ctx)

	go func() {
		if err := monitorSrv.Start(); err != nil {
			log.Error().Err(err).Msg("coreengine: monitor server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("coreengine: shutdown signal received")

	cancel()
	copyEngine.Shutdown()
	_ = monitorSrv.Shutdown()
	_ = session.End(context.Background(), store, cfg.Allocation.TotalCapitalUSD, tracker.OpenCount())

	return nil
}

// pumpDecodedEvents is the glue between the raw ingest stream and the
// rest of the pipeline: it decodes every frame and republishes the
// resulting market events on the bus, recording pool launches for the
// insider cache's token-age gate along the way.
func pumpDecodedEvents(ctx context.Context, ingester *ingest.Ingester, bus *eventbus.Bus, cache *insider.Cache) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-ingester.Frames():
			if !ok {
				return
			}
			events, decErr := decode.Decode(f.SubscriptionID, f.Raw)
			if decErr != nil {
				log.Warn().Err(decErr).Msg("coreengine: decode error")
				continue
			}
			now := time.Now()
			for _, e := range events {
				if e.Kind == domain.EventPoolCreated {
					cache.RecordTokenLaunch(e.PoolCreated.BaseMint, now)
				}
				bus.PublishMarketEvent(e)
			}
		}
	}
}

// consumeTradingSignals routes bus-published signals to their execution
// path: buys go through the orchestrator's gated single-flight Execute;
// sells bypass the orchestrator and invoke the sell capability directly,
// since the execution orchestrator's invariants (capital/position caps)
// only apply to opening new positions.
func consumeTradingSignals(ctx context.Context, bus *eventbus.Bus, orchestrator *execution.Orchestrator, seller position.SellCapability) {
	signals, cancel := bus.SubscribeSignals()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			switch sig.Kind {
			case domain.SignalBuy:
				if err := orchestrator.Execute(ctx, *sig.Buy, execution.SignalContext{}); err != nil {
					log.Warn().Err(err).Str("mint", sig.Buy.TokenMint).Msg("coreengine: buy signal not executed")
				}
			case domain.SignalSell:
				fraction := 1.0
				if sig.Sell.Amount != nil {
					fraction = *sig.Sell.Amount
				}
				if err := seller.Sell(ctx, sig.Sell.TokenMint, fraction); err != nil {
					log.Warn().Err(err).Str("mint", sig.Sell.TokenMint).Msg("coreengine: sell signal not executed")
				}
			}
		}
	}
}

// fallbackSolUSDRate is used in place of a price oracle, which this core
// does not implement; quote-adapter USD conversions are approximate
// until a real rate feed is wired in.
const fallbackSolUSDRate = 150.0

// refreshBalancePeriodically keeps the balance tracker's SOL figure
// current; failures are logged and retried on the next tick rather than
// treated as fatal.
func refreshBalancePeriodically(ctx context.Context, balances *blockchain.BalanceTracker, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := balances.Refresh(ctx); err != nil {
				log.Warn().Err(err).Msg("coreengine: balance refresh failed")
			}
		}
	}
}

func positionMirrorPath(sqlitePath string) string {
	return sqlitePath + ".positions.json"
}

func monitorAddr(host string, port int) string {
	return "http://" + host + ":" + strconv.Itoa(port)
}
