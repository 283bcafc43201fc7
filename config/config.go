// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig configures the HTTP server. There is no write timeout
// knob: a server-wide write deadline would kill long-lived websocket
// connections, so the write pump enforces per-message deadlines instead.
type ServerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	URL      string `yaml:"url"`       // postgres:// connection string
	MaxConns int    `yaml:"max_conns"` // pool size; the listener uses its own connection
}

// AuthConfig configures API access.
type AuthConfig struct {
	// APIKeys gate the REST surface. Plaintext keys are compared in
	// constant time; entries starting with "$2" are treated as bcrypt
	// hashes.
	APIKeys []string `yaml:"api_keys"`
	// JWTSecret verifies subscriber access tokens (HS256). Token issuance
	// is external; this service only decodes claims.
	JWTSecret string `yaml:"jwt_secret"`
}

// RealtimeConfig configures the broadcast subsystem.
type RealtimeConfig struct {
	// Workers bounds concurrent authorization checks per event.
	Workers int `yaml:"workers"`
	// CheckTimeout bounds each per-subscriber visibility query. A timed-out
	// check is a denial.
	CheckTimeout time.Duration `yaml:"check_timeout"`
	// ReconnectMinDelay/ReconnectMaxDelay bound the listener's exponential
	// backoff.
	ReconnectMinDelay time.Duration `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	// Buffer is the listener's event channel capacity.
	Buffer int `yaml:"buffer"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	ROWBASE_DATABASE_URL       - Postgres connection string (required)
//	ROWBASE_SERVER_HOST        - Server host (default: 0.0.0.0)
//	ROWBASE_SERVER_PORT        - Server port (default: 8080)
//	ROWBASE_API_KEY            - Service API key for the REST surface
//	ROWBASE_JWT_SECRET         - HS256 secret for subscriber tokens
//	ROWBASE_REALTIME_WORKERS   - Fan-out worker pool size (default: 16)
//	ROWBASE_LOG_LEVEL          - Log level: debug, info, warn, error
//	ROWBASE_LOG_FORMAT         - Log format: json or console
//	ROWBASE_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables. This is the recommended method for Docker deployments.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set ROWBASE_DATABASE_URL")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("ROWBASE_DATABASE_URL") != ""
}

// applyEnvOverrides applies ROWBASE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROWBASE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ROWBASE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ROWBASE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("ROWBASE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("ROWBASE_DATABASE_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxConns = n
		}
	}
	if v := os.Getenv("ROWBASE_API_KEY"); v != "" {
		cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, v)
	}
	if v := os.Getenv("ROWBASE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("ROWBASE_REALTIME_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Realtime.Workers = n
		}
	}
	if v := os.Getenv("ROWBASE_REALTIME_CHECK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Realtime.CheckTimeout = d
		}
	}
	if v := os.Getenv("ROWBASE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ROWBASE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ROWBASE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ROWBASE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Realtime.Workers == 0 {
		cfg.Realtime.Workers = 16
	}
	if cfg.Realtime.CheckTimeout == 0 {
		cfg.Realtime.CheckTimeout = 250 * time.Millisecond
	}
	if cfg.Realtime.ReconnectMinDelay == 0 {
		cfg.Realtime.ReconnectMinDelay = 500 * time.Millisecond
	}
	if cfg.Realtime.ReconnectMaxDelay == 0 {
		cfg.Realtime.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.Realtime.Buffer == 0 {
		cfg.Realtime.Buffer = 256
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Realtime.Workers < 1 {
		return fmt.Errorf("realtime.workers must be at least 1")
	}
	if cfg.Realtime.CheckTimeout < 0 {
		return fmt.Errorf("realtime.check_timeout must not be negative")
	}
	if cfg.Realtime.ReconnectMinDelay > cfg.Realtime.ReconnectMaxDelay {
		return fmt.Errorf("realtime.reconnect_min_delay must not exceed reconnect_max_delay")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
