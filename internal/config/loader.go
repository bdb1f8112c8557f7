package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEDGER_"

// Load reads the configuration file at path on top of Defaults and applies
// LEDGER_* environment overrides. A .env file in the working directory is
// loaded first if present. An empty path uses defaults and environment only.
// ${VAR} references in the file are expanded before decoding.
//
// The returned Config has not been validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, os.ExpandEnv(string(data)), &cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func decode(path, text string, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(text, cfg); err != nil {
			return fmt.Errorf("parse config toml: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal([]byte(text), cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// applyEnvOverrides overwrites fields whose LEDGER_* variable is set.
// Secrets such as DSNs are meant to arrive this way.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.RPC.Endpoint, "RPC_ENDPOINT")
	setStr(&cfg.RPC.WSEndpoint, "RPC_WS_ENDPOINT")
	setDuration(&cfg.RPC.Timeout, "RPC_TIMEOUT")
	setInt(&cfg.RPC.MaxRetries, "RPC_MAX_RETRIES")

	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxConns, "POSTGRES_MAX_CONNS")
	setStr(&cfg.ClickHouse.DSN, "CLICKHOUSE_DSN")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	setDuration(&cfg.Polling.Interval, "POLLING_INTERVAL")
	setInt(&cfg.Polling.BatchSize, "POLLING_BATCH_SIZE")
	setDuration(&cfg.Polling.PollTimeout, "POLLING_POLL_TIMEOUT")
	setDuration(&cfg.Polling.StopTimeout, "POLLING_STOP_TIMEOUT")
	setInt(&cfg.Polling.FailedRetryLimit, "POLLING_FAILED_RETRY_LIMIT")
	setDuration(&cfg.Polling.WalletLookback, "POLLING_WALLET_LOOKBACK")
	setInt(&cfg.Polling.MaxRecentWallets, "POLLING_MAX_RECENT_WALLETS")

	setStringSlice(&cfg.QuoteMints, "QUOTE_MINTS")
	setStr(&cfg.PriceRefresh.Schedule, "PRICE_REFRESH_SCHEDULE")
	setStr(&cfg.HTTP.Addr, "HTTP_ADDR")
	setStr(&cfg.Log.Level, "LOG_LEVEL")
	setStr(&cfg.Log.Format, "LOG_FORMAT")
	setBool(&cfg.UseMemory, "USE_MEMORY")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
