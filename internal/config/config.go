// Package config loads and validates the keygate application configuration.
// Precedence is compiled defaults, then an optional YAML file, then
// environment variables (KEYGATE_ prefix); only variables actually present
// in the environment override the file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Retry     RetryConfig     `yaml:"retry" envconfig:"RETRY"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig contains sqlite database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path" envconfig:"PATH"`
}

// LicenseConfig contains entitlement evaluation configuration.
type LicenseConfig struct {
	// ValidationIntervalHours bounds how long a locally cached "valid"
	// result is trusted before a fresh remote confirmation is required.
	ValidationIntervalHours int `yaml:"validation_interval_hours" envconfig:"VALIDATION_INTERVAL_HOURS"`
	// GracePeriodDays bounds how long a previously valid license is still
	// honored after remote validation starts failing.
	GracePeriodDays int    `yaml:"grace_period_days" envconfig:"GRACE_PERIOD_DAYS"`
	KeyPrefix       string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// RetryConfig contains resilient transport configuration.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	BaseDelay  time.Duration `yaml:"base_delay" envconfig:"BASE_DELAY"`
	MaxJitter  time.Duration `yaml:"max_jitter" envconfig:"MAX_JITTER"`
}

// RateLimitConfig contains rate limiting configuration for the validation
// surface.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
	Output string `yaml:"output" envconfig:"OUTPUT"`
}

// Load discovers the optional config file and builds the configuration.
func Load() (*Config, error) {
	return load(getConfigFilePath())
}

// load layers configuration sources: defaults first, then the YAML file
// (keys absent from the file leave the defaults untouched), then environment
// variables. envconfig carries no default tags, so it only writes fields
// whose variables are actually set.
func load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("KEYGATE", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ValidationInterval returns the cache freshness window as a duration.
func (c LicenseConfig) ValidationInterval() time.Duration {
	return time.Duration(c.ValidationIntervalHours) * time.Hour
}

// GracePeriod returns the offline tolerance window as a duration.
func (c LicenseConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}

// validate validates the configuration.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path must be set")
	}

	if c.License.ValidationIntervalHours <= 0 {
		return fmt.Errorf("validation interval must be positive")
	}

	if c.License.GracePeriodDays < 0 {
		return fmt.Errorf("grace period must not be negative")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}

	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive")
	}

	return nil
}

// getConfigFilePath returns the path to the config file, or empty when no
// file is present and env vars alone are used.
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "keygate.db",
		},
		License: LicenseConfig{
			ValidationIntervalHours: 24,
			GracePeriodDays:         3,
			KeyPrefix:               "KG",
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  500 * time.Millisecond,
			MaxJitter:  time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     50,
			Burst:   25,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
