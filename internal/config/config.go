// Package config loads dispatcher configuration from a YAML file with
// environment variable overrides for secrets and deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatcher process.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Ops      OpsConfig      `yaml:"ops"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds optional Redis settings for cross-process tenant locks.
// When Addr is empty the dispatcher falls back to PG advisory locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GatewayConfig holds settings for the messaging gateway API.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// DispatchConfig holds tuning knobs for the scheduler core.
type DispatchConfig struct {
	TickIntervalSeconds   int `yaml:"tick_interval_seconds"`
	PacingSliceSeconds    int `yaml:"pacing_slice_seconds"`
	HealthIntervalSeconds int `yaml:"health_interval_seconds"`
	CombinedBlockDelayMS  int `yaml:"combined_block_delay_ms"`
	TenantLockTTLSeconds  int `yaml:"tenant_lock_ttl_seconds"`
	BatchSize             int `yaml:"batch_size"`
}

// CombinedBlockDelay returns the delay between blocks of a combined variant.
func (d DispatchConfig) CombinedBlockDelay() time.Duration {
	return time.Duration(d.CombinedBlockDelayMS) * time.Millisecond
}

// TenantLockTTL returns the TTL for cross-process tenant pass locks.
func (d DispatchConfig) TenantLockTTL() time.Duration {
	return time.Duration(d.TenantLockTTLSeconds) * time.Second
}

// TickInterval returns the scheduler tick interval as a duration.
func (d DispatchConfig) TickInterval() time.Duration {
	return time.Duration(d.TickIntervalSeconds) * time.Second
}

// PacingSlice returns the bounded sleep slice used while waiting out pacing.
func (d DispatchConfig) PacingSlice() time.Duration {
	return time.Duration(d.PacingSliceSeconds) * time.Second
}

// HealthInterval returns the per-campaign channel health probe interval.
func (d DispatchConfig) HealthInterval() time.Duration {
	return time.Duration(d.HealthIntervalSeconds) * time.Second
}

// OpsConfig holds settings for the read-only operational HTTP endpoints.
type OpsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads the YAML config at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads the YAML config and then applies environment overrides.
// A .env file in the working directory is honored when present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("OPS_ADDR"); v != "" {
		cfg.Ops.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DISPATCH_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatch.TickIntervalSeconds = n
		}
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 15
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = 3
	}
	if c.Dispatch.TickIntervalSeconds == 0 {
		c.Dispatch.TickIntervalSeconds = 5
	}
	if c.Dispatch.PacingSliceSeconds == 0 {
		c.Dispatch.PacingSliceSeconds = 5
	}
	if c.Dispatch.HealthIntervalSeconds == 0 {
		c.Dispatch.HealthIntervalSeconds = 60
	}
	if c.Dispatch.CombinedBlockDelayMS == 0 {
		c.Dispatch.CombinedBlockDelayMS = 1500
	}
	if c.Dispatch.TenantLockTTLSeconds == 0 {
		c.Dispatch.TenantLockTTLSeconds = 300
	}
	if c.Dispatch.BatchSize == 0 {
		c.Dispatch.BatchSize = 100
	}
	if c.Ops.Addr == "" {
		c.Ops.Addr = ":8087"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	return nil
}
