// Package config loads the application configuration from JSON files
// with environment variable overrides. Files are optional; every field
// has a working default so the engine starts against a local NATS server
// with no configuration at all.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/chatrules/errors"
	"github.com/c360/chatrules/output/monitor"
	"github.com/c360/chatrules/processor/automation"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "CHATRULES"

// NATSConfig holds connection settings
type NATSConfig struct {
	URL           string        `json:"url"`
	Name          string        `json:"name"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	MaxReconnects int           `json:"max_reconnects"`
	Timeout       time.Duration `json:"timeout"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	// MaxAge bounds audit row retention
	MaxAge time.Duration `json:"max_age"`
}

// LoggingConfig holds structured logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// Config is the complete application configuration
type Config struct {
	NATS    NATSConfig        `json:"nats"`
	Engine  automation.Config `json:"engine"`
	Monitor monitor.Config    `json:"monitor"`
	Metrics MetricsConfig     `json:"metrics"`
	Audit   AuditConfig       `json:"audit"`
	Logging LoggingConfig     `json:"logging"`

	// RuleFiles are JSON rule definitions seeded into the rule store at
	// startup; existing rules with the same ID are left untouched
	RuleFiles []string `json:"rule_files,omitempty"`
}

// Default returns the working defaults
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Name:          "chatrules",
			MaxReconnects: -1,
			Timeout:       5 * time.Second,
		},
		Engine:  automation.DefaultConfig(),
		Monitor: monitor.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Audit: AuditConfig{
			MaxAge: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file (if path is non-empty), applies
// environment overrides, and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies CHATRULES_* environment variables on top of
// the file configuration
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(EnvPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(EnvPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(EnvPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(EnvPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(EnvPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv(EnvPrefix + "_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if val := os.Getenv(EnvPrefix + "_MONITOR_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Monitor.Port = port
		}
	}
	if val := os.Getenv(EnvPrefix + "_WORKERS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Engine.Workers = n
		}
	}
	if val := os.Getenv(EnvPrefix + "_RULE_FILES"); val != "" {
		cfg.RuleFiles = strings.Split(val, ",")
	}
}

// Validate checks the merged configuration
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("nats.url cannot be empty"), "Config", "Validate", "check NATS")
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.WrapInvalid(
			fmt.Errorf("metrics.port %d out of range", c.Metrics.Port),
			"Config", "Validate", "check metrics")
	}
	if c.Audit.MaxAge <= 0 {
		c.Audit.MaxAge = 30 * 24 * time.Hour
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log level %q", c.Logging.Level),
			"Config", "Validate", "check logging")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log format %q", c.Logging.Format),
			"Config", "Validate", "check logging")
	}

	return nil
}

// SlogLevel maps the configured level to its slog.Level. Unset values
// fall back to info; Validate has already rejected unknown ones.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
