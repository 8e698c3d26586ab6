// Package config loads storysync settings from defaults, an optional YAML
// file and STORYSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level configuration struct.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	API    APIConfig   `mapstructure:"api"`
	Store  StoreConfig `mapstructure:"store"`
	Feed   FeedConfig  `mapstructure:"feed"`
	Serve  ServeConfig `mapstructure:"serve"`
	Log    LogConfig   `mapstructure:"log"`
	Locale string      `mapstructure:"locale"`
}

// APIConfig points the gateway at the story API.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// StoreConfig selects the local storage backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
	DSN     string `mapstructure:"dsn"`
}

// FeedConfig shapes feed requests and hydration.
type FeedConfig struct {
	PageSize int `mapstructure:"page_size"`
	// Location is "true", "false" or empty to let the server decide.
	Location             string `mapstructure:"location"`
	HydrationConcurrency int    `mapstructure:"hydration_concurrency"`
}

// ServeConfig configures the HTTP facade.
type ServeConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default values.
const (
	DefaultBaseURL              = "https://story-api.dicoding.dev/v1"
	DefaultTimeout              = 30 * time.Second
	DefaultRetryAttempts        = 2
	DefaultBackend              = "sqlite"
	DefaultDataDir              = "./data"
	DefaultPageSize             = 0
	DefaultHydrationConcurrency = 8
	DefaultServeAddr            = "0.0.0.0:8080"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultLocale               = "en"
)

// Sentinel errors for configuration validation.
var (
	// ErrMissingBaseURL indicates api.base_url is empty.
	ErrMissingBaseURL = errors.New("api.base_url is required")
	// ErrInvalidTimeout indicates a non-positive api.timeout.
	ErrInvalidTimeout = errors.New("api.timeout must be positive")
	// ErrInvalidRetryAttempts indicates a negative retry count.
	ErrInvalidRetryAttempts = errors.New("api.retry_attempts must be non-negative")
	// ErrInvalidBackend indicates an unknown store.backend.
	ErrInvalidBackend = errors.New("store.backend must be one of sqlite, json, postgres, memory")
	// ErrMissingDSN indicates the postgres backend was chosen without a DSN.
	ErrMissingDSN = errors.New("store.dsn is required for the postgres backend")
	// ErrInvalidPageSize indicates a negative feed.page_size.
	ErrInvalidPageSize = errors.New("feed.page_size must be non-negative")
	// ErrInvalidLocation indicates feed.location is not a boolean.
	ErrInvalidLocation = errors.New("feed.location must be true, false or empty")
	// ErrInvalidConcurrency indicates a non-positive hydration limit.
	ErrInvalidConcurrency = errors.New("feed.hydration_concurrency must be positive")
	// ErrInvalidLogLevel indicates an unknown log.level.
	ErrInvalidLogLevel = errors.New("log.level must be one of debug, info, warn, error")
	// ErrInvalidLogFormat indicates an unknown log.format.
	ErrInvalidLogFormat = errors.New("log.format must be text or json")
)

// ConfigError reports a configuration problem. Err is one of the sentinel
// errors above or the underlying read/decode failure.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.API.BaseURL) == "":
		return ErrMissingBaseURL
	case c.API.Timeout <= 0:
		return ErrInvalidTimeout
	case c.API.RetryAttempts < 0:
		return ErrInvalidRetryAttempts
	case c.Feed.PageSize < 0:
		return ErrInvalidPageSize
	case c.Feed.HydrationConcurrency <= 0:
		return ErrInvalidConcurrency
	}

	switch c.Store.Backend {
	case "sqlite", "json", "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return ErrInvalidBackend
	}

	if _, err := c.LocationFilter(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return ErrInvalidLogFormat
	}
	return nil
}

// LocationFilter parses feed.location. Nil means the server decides.
func (c *Config) LocationFilter() (*bool, error) {
	if c.Feed.Location == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(c.Feed.Location)
	if err != nil {
		return nil, ErrInvalidLocation
	}
	return &v, nil
}

// SlogLevel parses log.level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, ErrInvalidLogLevel
	}
}
