package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/sweepscope/internal/gridsearch"
	"github.com/rewired-gh/sweepscope/internal/monitor"
	"github.com/rewired-gh/sweepscope/internal/orderflow"
	"github.com/rewired-gh/sweepscope/internal/outcome"
	"github.com/rewired-gh/sweepscope/internal/publish"
	"github.com/rewired-gh/sweepscope/internal/strategy"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

// Config represents the complete application configuration
type Config struct {
	Symbol    string                `mapstructure:"symbol"`
	Detector  DetectorConfig        `mapstructure:"detector"`
	Stream    sweep.StreamParams    `mapstructure:"stream"`
	Evaluator EvaluatorConfig       `mapstructure:"evaluator"`
	Grid      GridConfig            `mapstructure:"grid"`
	Probe     orderflow.ProbeConfig `mapstructure:"probe"`
	Strategy  StrategyConfig        `mapstructure:"strategy"`
	Bybit     BybitConfig           `mapstructure:"bybit"`
	Monitor   monitor.Config        `mapstructure:"monitor"`
	Storage   StorageConfig         `mapstructure:"storage"`
	Redis     RedisConfig           `mapstructure:"redis"`
	Telegram  TelegramConfig        `mapstructure:"telegram"`
	Metrics   MetricsConfig         `mapstructure:"metrics"`
	Logging   LoggingConfig         `mapstructure:"logging"`
}

// DetectorConfig holds the batch sweep detector thresholds
type DetectorConfig struct {
	WindowSec        float64 `mapstructure:"window_sec"`
	PriceThresholdBP float64 `mapstructure:"price_threshold_bp"`
	VolumeMin        float64 `mapstructure:"volume_min"`
	TieBreak         string  `mapstructure:"tie_break"`
}

// EvaluatorConfig holds the forward outcome horizon
type EvaluatorConfig struct {
	HorizonSec float64 `mapstructure:"horizon_sec"`
}

// GridConfig holds the parameter scan axes
type GridConfig struct {
	gridsearch.Grid `mapstructure:",squash"`
	Parallelism     int `mapstructure:"parallelism"`
}

// StrategyConfig holds the paper strategy and session sizing
type StrategyConfig struct {
	strategy.MeanReversionParams `mapstructure:",squash"`
	Session                      strategy.SessionConfig `mapstructure:"session"`
}

// BybitConfig holds market data endpoints and REST client behavior
type BybitConfig struct {
	StreamURL    string        `mapstructure:"stream_url"`
	RESTURL      string        `mapstructure:"rest_url"`
	Category     string        `mapstructure:"category"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	Burst        int           `mapstructure:"burst"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
}

// StorageConfig holds SQLite persistence configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// RedisConfig holds the pub/sub sink configuration
type RedisConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	publish.Config `mapstructure:",squash"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	TopResults     int           `mapstructure:"top_results"`
}

// MetricsConfig holds the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// SWEEPSCOPE_DETECTOR_WINDOW_SEC overrides detector.window_sec
	v.SetEnvPrefix("SWEEPSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Monitor.Symbol = cfg.Symbol

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("symbol", "ETHUSDT")

	v.SetDefault("detector.window_sec", 0.5)
	v.SetDefault("detector.price_threshold_bp", 5.0)
	v.SetDefault("detector.volume_min", 5.0)
	v.SetDefault("detector.tie_break", sweep.UpFirst.String())

	stream := sweep.DefaultStreamParams()
	v.SetDefault("stream.short_window", stream.ShortWindow)
	v.SetDefault("stream.long_window", stream.LongWindow)
	v.SetDefault("stream.threshold_ratio", stream.ThresholdRatio)
	v.SetDefault("stream.side_dominance", stream.SideDominance)

	v.SetDefault("evaluator.horizon_sec", 30.0)

	grid := gridsearch.DefaultGrid()
	v.SetDefault("grid.windows", grid.Windows)
	v.SetDefault("grid.price_bps", grid.PriceBPs)
	v.SetDefault("grid.volume_mins", grid.VolumeMins)
	v.SetDefault("grid.parallelism", 4)

	probe := orderflow.DefaultProbeConfig()
	v.SetDefault("probe.windows", probe.Windows)
	v.SetDefault("probe.bands", probe.Bands)
	v.SetDefault("probe.min_interval", probe.MinInterval)
	v.SetDefault("probe.weak_ratio", probe.WeakRatio)
	v.SetDefault("probe.run_share", probe.RunShare)
	v.SetDefault("probe.extreme_windows", probe.ExtremeWindows)

	mr := strategy.DefaultMeanReversionParams()
	v.SetDefault("strategy.delay_ms", mr.DelayMs)
	v.SetDefault("strategy.hold_sec", mr.HoldSec)
	v.SetDefault("strategy.tp_bp", mr.TPBP)
	v.SetDefault("strategy.sl_bp", mr.SLBP)
	v.SetDefault("strategy.session.starting_equity", 0.0) // 0 = unsized, PnL in price units
	v.SetDefault("strategy.session.leverage", 0.0)

	v.SetDefault("bybit.stream_url", "wss://stream.bybit.com/v5/public/linear")
	v.SetDefault("bybit.rest_url", "https://api.bybit.com")
	v.SetDefault("bybit.category", "linear")
	v.SetDefault("bybit.ping_interval", "20s")
	v.SetDefault("bybit.timeout", "10s")
	v.SetDefault("bybit.rate_limit", 10.0)
	v.SetDefault("bybit.burst", 10)
	v.SetDefault("bybit.max_retries", 3)
	v.SetDefault("bybit.retry_delay", "1s")

	mon := monitor.DefaultConfig()
	v.SetDefault("monitor.cooldown", mon.Cooldown)
	v.SetDefault("monitor.escalation", mon.Escalation)

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "") // empty = $TMPDIR/sweepscope/data.db
	v.SetDefault("storage.max_runs", 200)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sweepscope")
	v.SetDefault("redis.latest_ttl", "1m")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.top_results", 5)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9108")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if _, err := c.DetectorParams(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	if err := outcome.ValidateHorizon(c.Evaluator.HorizonSec); err != nil {
		return fmt.Errorf("evaluator: %w", err)
	}

	if c.Grid.Size() == 0 {
		return fmt.Errorf("grid.windows, grid.price_bps and grid.volume_mins must not be empty")
	}
	if c.Grid.Parallelism < 0 {
		return fmt.Errorf("grid.parallelism must not be negative")
	}

	if err := c.Probe.Validate(); err != nil {
		return err
	}

	if err := c.Strategy.MeanReversionParams.Validate(); err != nil {
		return err
	}
	if c.Strategy.Session.StartingEquity < 0 || c.Strategy.Session.Leverage < 0 {
		return fmt.Errorf("strategy.session.starting_equity and strategy.session.leverage must not be negative")
	}

	if c.Bybit.StreamURL == "" {
		return fmt.Errorf("bybit.stream_url is required")
	}
	if c.Bybit.RESTURL == "" {
		return fmt.Errorf("bybit.rest_url is required")
	}
	if c.Bybit.Category == "" {
		return fmt.Errorf("bybit.category is required")
	}
	if c.Bybit.PingInterval < time.Second {
		return fmt.Errorf("bybit.ping_interval must be at least 1 second")
	}
	if c.Bybit.RateLimit <= 0 || c.Bybit.Burst < 1 {
		return fmt.Errorf("bybit.rate_limit must be positive and bybit.burst at least 1")
	}
	if c.Bybit.MaxRetries < 1 {
		return fmt.Errorf("bybit.max_retries must be at least 1")
	}

	if c.Monitor.Cooldown < 0 {
		return fmt.Errorf("monitor.cooldown must not be negative")
	}
	if c.Monitor.Escalation < 0 {
		return fmt.Errorf("monitor.escalation must not be negative")
	}

	if c.Storage.MaxRuns < 0 {
		return fmt.Errorf("storage.max_runs must not be negative")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 1 {
			return fmt.Errorf("telegram.max_retries must be at least 1")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics is enabled")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// DetectorParams returns the batch detector parameters.
func (c *Config) DetectorParams() (sweep.Params, error) {
	tb, err := sweep.ParseTieBreak(c.Detector.TieBreak)
	if err != nil {
		return sweep.Params{}, err
	}
	p := sweep.Params{
		WindowSec:        c.Detector.WindowSec,
		PriceThresholdBP: c.Detector.PriceThresholdBP,
		VolumeMin:        c.Detector.VolumeMin,
		TieBreak:         tb,
	}
	return p, p.Validate()
}

// GridOptions returns the scan options for the configured horizon and tie break.
func (c *Config) GridOptions() (gridsearch.Options, error) {
	tb, err := sweep.ParseTieBreak(c.Detector.TieBreak)
	if err != nil {
		return gridsearch.Options{}, err
	}
	return gridsearch.Options{
		Horizon:     c.Evaluator.HorizonSec,
		TieBreak:    tb,
		Parallelism: c.Grid.Parallelism,
	}, nil
}
