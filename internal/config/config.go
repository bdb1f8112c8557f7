// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"solana-wallet-ledger/internal/discovery"
	"solana-wallet-ledger/internal/domain"
	"solana-wallet-ledger/internal/ingestion"
)

// Config is the root configuration of the ledger binaries.
type Config struct {
	RPC          RPCConfig          `yaml:"rpc" toml:"rpc"`
	Postgres     PostgresConfig     `yaml:"postgres" toml:"postgres"`
	ClickHouse   ClickHouseConfig   `yaml:"clickhouse" toml:"clickhouse"`
	Redis        RedisConfig        `yaml:"redis" toml:"redis"`
	Polling      PollingConfig      `yaml:"polling" toml:"polling"`
	Retry        RetryConfig        `yaml:"retry" toml:"retry"`
	Sources      []SourceConfig     `yaml:"sources" toml:"sources"`
	QuoteMints   []string           `yaml:"quote_mints" toml:"quote_mints"`
	PriceRefresh PriceRefreshConfig `yaml:"price_refresh" toml:"price_refresh"`
	Tracked      []TrackedConfig    `yaml:"tracked_wallets" toml:"tracked_wallets"`
	HTTP         HTTPConfig         `yaml:"http" toml:"http"`
	Log          LogConfig          `yaml:"log" toml:"log"`
	UseMemory    bool               `yaml:"use_memory" toml:"use_memory"`
}

// RPCConfig holds Solana node endpoints.
type RPCConfig struct {
	Endpoint   string   `yaml:"endpoint" toml:"endpoint"`
	WSEndpoint string   `yaml:"ws_endpoint" toml:"ws_endpoint"` // optional, enables log wake-ups
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
	MaxRetries int      `yaml:"max_retries" toml:"max_retries"`
}

// PostgresConfig holds the ledger database connection.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" toml:"dsn"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
}

// ClickHouseConfig holds the optional event archive connection.
type ClickHouseConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// RedisConfig holds the optional price feed connection.
type RedisConfig struct {
	Addr       string `yaml:"addr" toml:"addr"`
	Password   string `yaml:"password" toml:"password"`
	DB         int    `yaml:"db" toml:"db"`
	TLSEnabled bool   `yaml:"tls_enabled" toml:"tls_enabled"`
}

// PollingConfig tunes the per-source pollers.
type PollingConfig struct {
	Interval         Duration `yaml:"interval" toml:"interval"`
	BatchSize        int      `yaml:"batch_size" toml:"batch_size"`
	PollTimeout      Duration `yaml:"poll_timeout" toml:"poll_timeout"`
	StopTimeout      Duration `yaml:"stop_timeout" toml:"stop_timeout"`
	FailedRetryLimit int      `yaml:"failed_retry_limit" toml:"failed_retry_limit"`
	WakeDebounce     Duration `yaml:"wake_debounce" toml:"wake_debounce"`

	// Wallets that traded within WalletLookback are polled directly, up to
	// MaxRecentWallets of them. Zero polls tracked wallets only.
	WalletLookback   Duration `yaml:"wallet_lookback" toml:"wallet_lookback"`
	MaxRecentWallets int      `yaml:"max_recent_wallets" toml:"max_recent_wallets"`
}

// RetryConfig holds the retry policy per failure kind.
type RetryConfig struct {
	Transport RetryPolicyConfig `yaml:"transport" toml:"transport"`
	Storage   RetryPolicyConfig `yaml:"storage" toml:"storage"`
}

// RetryPolicyConfig is an exponential backoff.
type RetryPolicyConfig struct {
	Initial    Duration `yaml:"initial" toml:"initial"`
	Max        Duration `yaml:"max" toml:"max"`
	Multiplier float64  `yaml:"multiplier" toml:"multiplier"`
	MaxRetries int      `yaml:"max_retries" toml:"max_retries"`
}

// Policy converts the config into an ingestion retry policy.
func (r RetryPolicyConfig) Policy() ingestion.RetryPolicy {
	return ingestion.RetryPolicy{
		Initial:    r.Initial.Duration,
		Max:        r.Max.Duration,
		Multiplier: r.Multiplier,
		MaxRetries: r.MaxRetries,
	}
}

// SourceConfig is one monitored program.
type SourceConfig struct {
	Name        string   `yaml:"name" toml:"name"`
	Address     string   `yaml:"address" toml:"address"`
	Markers     []string `yaml:"markers" toml:"markers"`
	LogPatterns []string `yaml:"log_patterns" toml:"log_patterns"`
}

// PriceRefreshConfig schedules the unrealized P&L refresher.
type PriceRefreshConfig struct {
	Schedule string   `yaml:"schedule" toml:"schedule"` // cron spec, empty disables
	MaxAge   Duration `yaml:"max_age" toml:"max_age"`   // older prices are ignored
}

// TrackedConfig is a watch list entry synced into the tracked wallet store at startup.
type TrackedConfig struct {
	Address  string `yaml:"address" toml:"address"`
	Label    string `yaml:"label" toml:"label"`
	Reason   string `yaml:"reason" toml:"reason"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`
}

// HTTPConfig holds the listen address of /metrics, /health and friends.
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json or console
}

// Duration is a time.Duration read from strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Defaults returns the configuration used for every unset field.
func Defaults() Config {
	return Config{
		RPC: RPCConfig{
			Timeout:    Duration{30 * time.Second},
			MaxRetries: 3,
		},
		Polling: PollingConfig{
			Interval:         Duration{ingestion.DefaultInterval},
			BatchSize:        ingestion.DefaultBatchSize,
			PollTimeout:      Duration{ingestion.DefaultPollTimeout},
			StopTimeout:      Duration{30 * time.Second},
			FailedRetryLimit: ingestion.DefaultFailedRetryLimit,
			WakeDebounce:     Duration{ingestion.DefaultWakeDebounce},
			WalletLookback:   Duration{7 * 24 * time.Hour},
		},
		Retry: RetryConfig{
			Transport: fromPolicy(ingestion.DefaultTransportPolicy()),
			Storage:   fromPolicy(ingestion.DefaultStoragePolicy()),
		},
		QuoteMints:   domain.DefaultQuoteMints(),
		PriceRefresh: PriceRefreshConfig{Schedule: "@every 1m", MaxAge: Duration{5 * time.Minute}},
		HTTP:         HTTPConfig{Addr: ":9090"},
		Log:          LogConfig{Level: "info", Format: "json"},
	}
}

func fromPolicy(p ingestion.RetryPolicy) RetryPolicyConfig {
	return RetryPolicyConfig{
		Initial:    Duration{p.Initial},
		Max:        Duration{p.Max},
		Multiplier: p.Multiplier,
		MaxRetries: p.MaxRetries,
	}
}

// DomainSources returns the configured sources, or the default programs
// when none are configured.
func (c *Config) DomainSources() []domain.Source {
	if len(c.Sources) == 0 {
		return discovery.DefaultSources()
	}
	out := make([]domain.Source, len(c.Sources))
	for i, s := range c.Sources {
		out[i] = domain.Source{
			Name:        s.Name,
			Address:     s.Address,
			Markers:     s.Markers,
			LogPatterns: s.LogPatterns,
		}
	}
	return out
}

var (
	validLogLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string

	if c.RPC.Endpoint == "" {
		errs = append(errs, "rpc: endpoint must not be empty")
	}
	if c.RPC.Timeout.Duration <= 0 {
		errs = append(errs, "rpc: timeout must be positive")
	}
	if c.RPC.MaxRetries < 0 {
		errs = append(errs, "rpc: max_retries must not be negative")
	}
	if !c.UseMemory && c.Postgres.DSN == "" {
		errs = append(errs, "postgres: dsn is required unless use_memory is set")
	}
	if c.Postgres.MaxConns < 0 {
		errs = append(errs, "postgres: max_conns must not be negative")
	}

	if c.Polling.Interval.Duration <= 0 {
		errs = append(errs, "polling: interval must be positive")
	}
	if c.Polling.BatchSize < 1 || c.Polling.BatchSize > 1000 {
		errs = append(errs, fmt.Sprintf("polling: batch_size %d out of range [1, 1000]", c.Polling.BatchSize))
	}
	if c.Polling.PollTimeout.Duration <= 0 {
		errs = append(errs, "polling: poll_timeout must be positive")
	}
	if c.Polling.StopTimeout.Duration <= 0 {
		errs = append(errs, "polling: stop_timeout must be positive")
	}
	if c.Polling.FailedRetryLimit < 0 {
		errs = append(errs, "polling: failed_retry_limit must not be negative")
	}
	if c.Polling.MaxRecentWallets < 0 {
		errs = append(errs, "polling: max_recent_wallets must not be negative")
	}
	if c.Polling.MaxRecentWallets > 0 && c.Polling.WalletLookback.Duration <= 0 {
		errs = append(errs, "polling: wallet_lookback must be positive when max_recent_wallets is set")
	}

	errs = append(errs, c.Retry.Transport.validate("retry.transport")...)
	errs = append(errs, c.Retry.Storage.validate("retry.storage")...)

	names := make(map[string]bool)
	for i, src := range c.DomainSources() {
		if src.Name == "" {
			errs = append(errs, fmt.Sprintf("sources[%d]: name must not be empty", i))
		} else if names[src.Name] {
			errs = append(errs, fmt.Sprintf("sources[%d]: duplicate name %q", i, src.Name))
		}
		names[src.Name] = true
		if _, err := discovery.NewEventSource(src); err != nil {
			errs = append(errs, fmt.Sprintf("sources[%d]: %v", i, err))
		}
	}

	for _, m := range c.QuoteMints {
		if !discovery.IsValidAddress(m) {
			errs = append(errs, fmt.Sprintf("quote_mints: invalid address %q", m))
		}
	}

	seen := make(map[string]bool)
	for i, t := range c.Tracked {
		switch {
		case !discovery.IsValidAddress(t.Address):
			errs = append(errs, fmt.Sprintf("tracked_wallets[%d]: invalid address %q", i, t.Address))
		case seen[t.Address]:
			errs = append(errs, fmt.Sprintf("tracked_wallets[%d]: duplicate address %q", i, t.Address))
		}
		seen[t.Address] = true
	}

	if c.PriceRefresh.Schedule != "" {
		if _, err := cron.ParseStandard(c.PriceRefresh.Schedule); err != nil {
			errs = append(errs, fmt.Sprintf("price_refresh: schedule %q: %v", c.PriceRefresh.Schedule, err))
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: trace, debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, console)", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (r RetryPolicyConfig) validate(name string) []string {
	var errs []string
	if r.Initial.Duration <= 0 {
		errs = append(errs, name+": initial must be positive")
	}
	if r.Max.Duration < r.Initial.Duration {
		errs = append(errs, name+": max must not be below initial")
	}
	if r.Multiplier < 1 {
		errs = append(errs, name+": multiplier must be at least 1")
	}
	if r.MaxRetries < 0 {
		errs = append(errs, name+": max_retries must not be negative")
	}
	return errs
}
