// Package config defines all configuration for the quoting daemon. Config
// is loaded from a YAML file (default: configs/config.yaml) with sensitive
// fields overridable via QUOTER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cents-quoter/internal/connsupervisor"
	"cents-quoter/internal/quoting"
	"cents-quoter/internal/risk"
	"cents-quoter/internal/strategy"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun         bool                 `mapstructure:"dry_run"`
	Auth           AuthConfig           `mapstructure:"auth"`
	API            APIConfig            `mapstructure:"api"`
	Strategy       StrategyConfig       `mapstructure:"strategy"`
	Risk           RiskConfig           `mapstructure:"risk"`
	Drawdown       DrawdownConfig       `mapstructure:"drawdown"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Reconciler     ReconcilerConfig     `mapstructure:"reconciler"`
	Connection     ConnectionConfig     `mapstructure:"connection"`
	Scanner        ScannerConfig        `mapstructure:"scanner"`
	Store          StoreConfig          `mapstructure:"store"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Tickers        []string             `mapstructure:"tickers"`
}

// AuthConfig holds the exchange API credentials: PrivateKeyPEM is the
// RSA private key and KeyID identifies which exchange API key it belongs
// to. Validate requires them unless dry_run is set; no Signer in this
// repository reads them (cmd/quoter uses exchange.NoopSigner).
type AuthConfig struct {
	KeyID         string `mapstructure:"key_id"`
	PrivateKeyPEM string `mapstructure:"private_key_pem"`
}

// APIConfig holds exchange REST/WS endpoints.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	WSURL   string        `mapstructure:"ws_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StrategyConfig selects and tunes the quoting strategy. Exactly one of
// Adaptive / OptimismTax is active, chosen by Kind.
type StrategyConfig struct {
	Kind        string                     `mapstructure:"kind"` // "adaptive" or "optimism_tax"
	Adaptive    strategy.AdaptiveParams    `mapstructure:"adaptive"`
	OptimismTax strategy.OptimismTaxParams `mapstructure:"optimism_tax"`
}

// RiskConfig mirrors risk.GateParams, the synchronous admission check on
// the quoting hot path.
type RiskConfig struct {
	MaxOrderSize         int   `mapstructure:"max_order_size"`
	MaxPositionPerTicker int   `mapstructure:"max_position_per_ticker"`
	MaxTotalExposure     int   `mapstructure:"max_total_exposure"`
	MinSpreadCents       int   `mapstructure:"min_spread_cents"`
	MaxDailyLoss         int64 `mapstructure:"max_daily_loss"`
}

func (r RiskConfig) toParams() risk.GateParams {
	return risk.GateParams{
		MaxOrderSize:         r.MaxOrderSize,
		MaxPositionPerTicker: r.MaxPositionPerTicker,
		MaxTotalExposure:     r.MaxTotalExposure,
		MinSpreadCents:       r.MinSpreadCents,
		MaxDailyLoss:         r.MaxDailyLoss,
	}
}

// DrawdownConfig mirrors risk.DrawdownParams.
type DrawdownConfig struct {
	ScaleDownStart   int64 `mapstructure:"scale_down_start"`
	HalfSizeDrawdown int64 `mapstructure:"half_size_drawdown"`
	HaltDrawdown     int64 `mapstructure:"halt_drawdown"`
}

func (d DrawdownConfig) toParams() risk.DrawdownParams {
	return risk.DrawdownParams{
		ScaleDownStart:   d.ScaleDownStart,
		HalfSizeDrawdown: d.HalfSizeDrawdown,
		HaltDrawdown:     d.HaltDrawdown,
	}
}

// CircuitBreakerConfig mirrors risk.BreakerParams.
type CircuitBreakerConfig struct {
	MaxConsecutiveLosses int           `mapstructure:"max_consecutive_losses"`
	MaxLossesInWindow    int           `mapstructure:"max_losses_in_window"`
	Window               time.Duration `mapstructure:"window"`
	Cooldown             time.Duration `mapstructure:"cooldown"`
}

func (c CircuitBreakerConfig) toParams() risk.BreakerParams {
	return risk.BreakerParams{
		MaxConsecutiveLosses: c.MaxConsecutiveLosses,
		MaxLossesInWindow:    c.MaxLossesInWindow,
		Window:               c.Window,
		Cooldown:             c.Cooldown,
	}
}

// ReconcilerConfig mirrors quoting.Params, the debounce/rate-limit knobs
// for the central quoting supervisor. MaxTotalExposure is deliberately
// absent here: it's the same exposure cap risk.GateParams enforces on the
// admission path (RiskConfig.MaxTotalExposure), not a second independent
// limit — see Config.QuotingParams.
type ReconcilerConfig struct {
	MinGlobalInterval   time.Duration `mapstructure:"min_global_interval"`
	MinQuoteInterval    time.Duration `mapstructure:"min_quote_interval"`
	MinPriceChangeCents int           `mapstructure:"min_price_change_cents"`
	MaxOrderSize        int           `mapstructure:"max_order_size"`
	DenyLogInterval     time.Duration `mapstructure:"deny_log_interval"`
	MaxLatencySamples   int           `mapstructure:"max_latency_samples"`
}

func (r ReconcilerConfig) toParams() quoting.Params {
	return quoting.Params{
		MinGlobalInterval:   r.MinGlobalInterval,
		MinQuoteInterval:    r.MinQuoteInterval,
		MinPriceChangeCents: r.MinPriceChangeCents,
		MaxOrderSize:        r.MaxOrderSize,
		DenyLogInterval:     r.DenyLogInterval,
		MaxLatencySamples:   r.MaxLatencySamples,
	}
}

// ConnectionConfig mirrors connsupervisor.Params.
type ConnectionConfig struct {
	HealthCheckInterval     time.Duration `mapstructure:"health_check_interval"`
	StaleDataThreshold      time.Duration `mapstructure:"stale_data_threshold"`
	ForceReconnectThreshold time.Duration `mapstructure:"force_reconnect_threshold"`
}

func (c ConnectionConfig) toParams() connsupervisor.Params {
	return connsupervisor.Params{
		HealthCheckInterval:     c.HealthCheckInterval,
		StaleDataThreshold:      c.StaleDataThreshold,
		ForceReconnectThreshold: c.ForceReconnectThreshold,
	}
}

// ScannerConfig controls how candidate tickers are discovered and ranked.
type ScannerConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MinLiquidity   int64         `mapstructure:"min_liquidity"`
	MinVolume24h   int64         `mapstructure:"min_volume_24h"`
	MinSpread      int           `mapstructure:"min_spread"`
	MaxEndDateDays int           `mapstructure:"max_end_date_days"`
	ExcludeTickers []string      `mapstructure:"exclude_tickers"`
}

// StoreConfig sets where position snapshots and the audit trail are
// persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
	AuditDB string `mapstructure:"audit_db"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// GateParams builds the risk.GateParams this config describes.
func (c *Config) GateParams() risk.GateParams { return c.Risk.toParams() }

// DrawdownParams builds the risk.DrawdownParams this config describes.
func (c *Config) DrawdownParams() risk.DrawdownParams { return c.Drawdown.toParams() }

// BreakerParams builds the risk.BreakerParams this config describes.
func (c *Config) BreakerParams() risk.BreakerParams { return c.CircuitBreaker.toParams() }

// QuotingParams builds the quoting.Params this config describes. The
// exposure cap is sourced from Risk, not Reconciler, so operators only have
// one "max_total_exposure" knob to set instead of two copies that can
// silently drift out of lockstep.
func (c *Config) QuotingParams() quoting.Params {
	p := c.Reconciler.toParams()
	p.MaxTotalExposure = c.Risk.MaxTotalExposure
	return p
}

// ConnSupervisorParams builds the connsupervisor.Params this config
// describes.
func (c *Config) ConnSupervisorParams() connsupervisor.Params { return c.Connection.toParams() }

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: QUOTER_KEY_ID, QUOTER_PRIVATE_KEY_PEM.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("QUOTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if keyID := os.Getenv("QUOTER_KEY_ID"); keyID != "" {
		cfg.Auth.KeyID = keyID
	}
	if pem := os.Getenv("QUOTER_PRIVATE_KEY_PEM"); pem != "" {
		cfg.Auth.PrivateKeyPEM = pem
	}
	if os.Getenv("QUOTER_DRY_RUN") == "true" || os.Getenv("QUOTER_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if !c.DryRun {
		if c.Auth.KeyID == "" {
			return fmt.Errorf("auth.key_id is required (set QUOTER_KEY_ID), unless dry_run is true")
		}
		if c.Auth.PrivateKeyPEM == "" {
			return fmt.Errorf("auth.private_key_pem is required (set QUOTER_PRIVATE_KEY_PEM), unless dry_run is true")
		}
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.WSURL == "" {
		return fmt.Errorf("api.ws_url is required")
	}
	switch c.Strategy.Kind {
	case "adaptive", "optimism_tax":
	default:
		return fmt.Errorf(`strategy.kind must be "adaptive" or "optimism_tax"`)
	}
	if c.Risk.MaxOrderSize <= 0 {
		return fmt.Errorf("risk.max_order_size must be > 0")
	}
	if c.Risk.MaxTotalExposure <= 0 {
		return fmt.Errorf("risk.max_total_exposure must be > 0")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("risk.max_daily_loss must be > 0")
	}
	if c.Drawdown.HaltDrawdown <= c.Drawdown.HalfSizeDrawdown || c.Drawdown.HalfSizeDrawdown <= c.Drawdown.ScaleDownStart {
		return fmt.Errorf("drawdown thresholds must satisfy scale_down_start < half_size_drawdown < halt_drawdown")
	}
	if c.CircuitBreaker.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("circuit_breaker.max_consecutive_losses must be > 0")
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("tickers must list at least one market to quote")
	}
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	return nil
}
