// Package config loads and hot-reloads the core's TOML configuration via
// viper and fsnotify, keyed to the sections the copy-trading core
// consumes: strategy, allocation, entry_criteria, risk_management,
// trading, wallet.
package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the full core configuration snapshot.
type Config struct {
	Wallet          WalletConfig          `mapstructure:"wallet"`
	RPC             RPCConfig             `mapstructure:"rpc"`
	Strategy        StrategyConfig        `mapstructure:"strategy"`
	Allocation      AllocationConfig      `mapstructure:"allocation"`
	EntryCriteria   EntryCriteriaConfig   `mapstructure:"entry_criteria"`
	RiskManagement  RiskManagementConfig  `mapstructure:"risk_management"`
	Trading         TradingConfig         `mapstructure:"trading"`
	Jupiter         JupiterConfig         `mapstructure:"jupiter"`
	Blockchain      BlockchainConfig      `mapstructure:"blockchain"`
	Storage         StorageConfig         `mapstructure:"storage"`
	Monitor         MonitorConfig         `mapstructure:"monitor"`
	WebSocket       WebSocketConfig       `mapstructure:"websocket"`
}

// WalletConfig names the env vars carrying sensitive material; the core
// never reads private keys from the config file itself.
type WalletConfig struct {
	PrivateKeyEnv string `mapstructure:"private_key_env"`
	BaseMint      string `mapstructure:"base_mint"`
}

type RPCConfig struct {
	ShyftURL          string `mapstructure:"shyft_url"`
	ShyftAPIKeyEnv    string `mapstructure:"shyft_api_key_env"`
	FallbackURL       string `mapstructure:"fallback_url"`
	FallbackAPIKeyEnv string `mapstructure:"fallback_api_key_env"`
}

// StrategyConfig governs the exit policy's time horizon: force exit once
// age_hours >= min(time_horizon_hours, force_exit_hours).
type StrategyConfig struct {
	TimeHorizonHours float64 `mapstructure:"time_horizon_hours"`
}

// AllocationConfig bounds capital deployed per position, the execution
// orchestrator's sizing inputs.
type AllocationConfig struct {
	TotalCapitalUSD     float64 `mapstructure:"total_capital_usd"`
	MainPositionPercent float64 `mapstructure:"main_position_percent"`
	MaxDailyCopyTrades  int     `mapstructure:"max_daily_copy_trades"`
}

// EntryCriteriaConfig names the thresholds the execution orchestrator
// validates a buy signal against before spending capital.
type EntryCriteriaConfig struct {
	MinConfidence     float64 `mapstructure:"min_confidence"`
	MaxRugScore       float64 `mapstructure:"max_rug_score"`
	MinVelocityPerMin float64 `mapstructure:"min_velocity_per_min"`
}

// RiskManagementConfig parameterizes the position exit policy.
type RiskManagementConfig struct {
	ForceExitHours         float64    `mapstructure:"force_exit_hours"`
	MaxLossUSD             float64    `mapstructure:"max_loss_usd"`
	MaxLossPerPositionPct  float64    `mapstructure:"max_loss_per_position_pct"`
	MinHoldMinutes         float64    `mapstructure:"min_hold_minutes"`
	TrailingStopPercent    float64    `mapstructure:"trailing_stop_percent"`
	FinalTargetMultiplier  float64    `mapstructure:"final_target_multiplier"`
	TierMultipliers        [3]float64 `mapstructure:"tier_multipliers"`
	TierExitPercents       [3]float64 `mapstructure:"tier_exit_percents"`
	EmergencyStopPath      string     `mapstructure:"emergency_stop_path"`
	MaxPositions           int        `mapstructure:"max_positions"`
}

type TradingConfig struct {
	AutoTradingEnabled bool          `mapstructure:"auto_trading_enabled"`
	MaxRetryAttempts   int           `mapstructure:"max_retry_attempts"`
	RetryBackoffBaseMs int           `mapstructure:"retry_backoff_base_ms"`
	PreExecutionDelayMs int          `mapstructure:"pre_execution_delay_ms"`
	SimulationMode     bool          `mapstructure:"simulation_mode"`
}

type JupiterConfig struct {
	QuoteAPIURL    string `mapstructure:"quote_api_url"`
	SlippageBps    int    `mapstructure:"slippage_bps"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BlockchainConfig struct {
	BalanceRefreshSeconds int `mapstructure:"balance_refresh_seconds"`
}

type StorageConfig struct {
	SQLitePath        string `mapstructure:"sqlite_path"`
	SignalsBufferSize int    `mapstructure:"signals_buffer_size"`
	BackupDir         string `mapstructure:"backup_dir"`
}

// MonitorConfig is the diagnostics HTTP server (internal/monitor).
type MonitorConfig struct {
	ListenPort int    `mapstructure:"listen_port"`
	ListenHost string `mapstructure:"listen_host"`
}

type WebSocketConfig struct {
	ShyftURL         string `mapstructure:"shyft_url"`
	ReconnectDelayMs int    `mapstructure:"reconnect_delay_ms"`
	PingIntervalMs   int    `mapstructure:"ping_interval_ms"`
}

// Manager owns the viper instance, the current config snapshot, and the
// fsnotify-driven hot-reload subscription. Reload cadence is governed by
// whatever external collaborator touches the file; this manager reacts
// to the file-change events it observes.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager loads path as TOML and starts watching it for changes.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	v.SetDefault("blockchain.balance_refresh_seconds", 5)
	v.SetDefault("jupiter.quote_api_url", "https://quote-api.jup.ag/v6/quote")
	v.SetDefault("jupiter.slippage_bps", 500)
	v.SetDefault("jupiter.timeout_seconds", 10)
	v.SetDefault("rpc.shyft_api_key_env", "SHYFT_API_KEY")
	v.SetDefault("rpc.fallback_api_key_env", "HELIUS_API_KEY")
	v.SetDefault("rpc.fallback_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("storage.sqlite_path", "./data/core.db")
	v.SetDefault("storage.signals_buffer_size", 100)
	v.SetDefault("storage.backup_dir", "./data/backups")
	v.SetDefault("monitor.listen_port", 8090)
	v.SetDefault("monitor.listen_host", "127.0.0.1")
	v.SetDefault("wallet.private_key_env", "WALLET_PRIVATE_KEY")
	v.SetDefault("strategy.time_horizon_hours", 24.0)
	v.SetDefault("allocation.total_capital_usd", 1000.0)
	v.SetDefault("allocation.main_position_percent", 10.0)
	v.SetDefault("allocation.max_daily_copy_trades", 20)
	v.SetDefault("entry_criteria.min_confidence", 0.75)
	v.SetDefault("risk_management.force_exit_hours", 24.0)
	v.SetDefault("risk_management.min_hold_minutes", 5.0)
	v.SetDefault("risk_management.trailing_stop_percent", 15.0)
	v.SetDefault("risk_management.final_target_multiplier", 5.0)
	v.SetDefault("risk_management.max_positions", 10)
	v.SetDefault("trading.max_retry_attempts", 3)
	v.SetDefault("trading.retry_backoff_base_ms", 500)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{
		config: &cfg,
		viper:  v,
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

// Get returns the current config snapshot.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetOnChange registers a callback invoked after every successful
// reload, with the fresh snapshot.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("config: failed to unmarshal on reload")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// GetPrivateKey loads the wallet private key from the configured env var.
func (m *Manager) GetPrivateKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.PrivateKeyEnv)
}

// GetShyftAPIKey loads the Shyft API key from the configured env var.
func (m *Manager) GetShyftAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.ShyftAPIKeyEnv)
}

// GetFallbackAPIKey loads the fallback RPC API key from the configured
// env var.
func (m *Manager) GetFallbackAPIKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.RPC.FallbackAPIKeyEnv)
}

// GetShyftRPCURL returns the Shyft RPC URL with the API key injected.
func (m *Manager) GetShyftRPCURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url := m.config.RPC.ShyftURL
	key := os.Getenv(m.config.RPC.ShyftAPIKeyEnv)
	if key == "" {
		return url
	}
	if strings.Contains(url, "?") {
		return url + "&api_key=" + key
	}
	return url + "?api_key=" + key
}

// GetFallbackRPCURL returns the fallback RPC URL with the API key
// injected, using the provider-specific query-param name.
func (m *Manager) GetFallbackRPCURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url := m.config.RPC.FallbackURL
	key := os.Getenv(m.config.RPC.FallbackAPIKeyEnv)
	if key == "" {
		return url
	}

	param := "api_key"
	if strings.Contains(url, "helius") {
		param = "api-key"
	}
	if strings.Contains(url, "?") {
		return url + "&" + param + "=" + key
	}
	return url + "?" + param + "=" + key
}

// GetShyftWSURL returns the Shyft WebSocket URL with the API key
// injected.
func (m *Manager) GetShyftWSURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	url := m.config.WebSocket.ShyftURL
	key := os.Getenv(m.config.RPC.ShyftAPIKeyEnv)
	if key == "" {
		return url
	}
	if strings.Contains(url, "?") {
		return url + "&api_key=" + key
	}
	return url + "?api_key=" + key
}

// GetBalanceRefresh returns the balance refresh interval as a duration.
func (m *Manager) GetBalanceRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.BalanceRefreshSeconds) * time.Second
}
