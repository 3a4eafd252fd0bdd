// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a .env file, an optional YAML file and STARCHALLENGE_* env vars on top.
// - Validation failures wrap ErrInvalidConfig; loading failures wrap ErrLoadConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// AllowedOrigins feeds CORS and the websocket origin check. "*" allows any.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// DBDriver is postgres or sqlite.
	DBDriver string `koanf:"db_driver"`
	// DBDSN is the driver specific connection string.
	DBDSN string `koanf:"db_dsn"`
	// DBConnectTimeoutMS bounds the initial ping.
	DBConnectTimeoutMS int `koanf:"db_connect_timeout_ms"`
	// DBMaxOpenConns sizes the connection pool.
	DBMaxOpenConns int `koanf:"db_max_open_conns"`
	// DBMetrics registers the gorm prometheus plugin.
	DBMetrics bool `koanf:"db_metrics"`

	// QueueSize bounds the in-memory reward job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of reward workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the per-performance star grant guard.
	DedupeSize int `koanf:"dedupe_size"`

	// StarDivisor turns a performance value into stars: floor(value / divisor).
	StarDivisor float64 `koanf:"star_divisor"`
	// WinnerCount is the default number of winners per challenge.
	WinnerCount int `koanf:"winner_count"`
	// IdempotentWinners returns existing winners instead of appending new rows.
	IdempotentWinners bool `koanf:"idempotent_winners"`
	// IdempotentRewards creates at most one reward per (user, tier).
	IdempotentRewards bool `koanf:"idempotent_rewards"`
	// RecomputeConcurrency bounds parallel score recomputation of a challenge.
	RecomputeConcurrency int `koanf:"recompute_concurrency"`

	// SnapshotDelayMS delays the initial snapshot sent to a new subscriber.
	SnapshotDelayMS int `koanf:"snapshot_delay_ms"`
	// ClientSendBuffer is the per-connection outbound buffer, in messages.
	ClientSendBuffer int `koanf:"client_send_buffer"`
	// StatusSyncIntervalMS is the period of the challenge status sync; 0 disables it.
	StatusSyncIntervalMS int `koanf:"status_sync_interval_ms"`
}

// New creates a Config with defaults. Context is accepted first to follow the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		AllowedOrigins:       []string{"*"},
		DBDriver:             DriverSQLite,
		DBDSN:                "file:starchallenge.db?cache=shared&_foreign_keys=on",
		DBConnectTimeoutMS:   5000,
		DBMaxOpenConns:       25,
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           100_000,
		StarDivisor:          10,
		WinnerCount:          3,
		IdempotentWinners:    true,
		IdempotentRewards:    true,
		RecomputeConcurrency: 8,
		SnapshotDelayMS:      100,
		ClientSendBuffer:     256,
		StatusSyncIntervalMS: 30_000,
	}
}

// Validate checks semantic constraints that the decoder cannot.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite:
		return fmt.Errorf("%w: unknown db_driver %q", ErrInvalidConfig, c.DBDriver)
	case strings.TrimSpace(c.DBDSN) == "":
		return fmt.Errorf("%w: db_dsn must not be empty", ErrInvalidConfig)
	case c.StarDivisor <= 0:
		return fmt.Errorf("%w: star_divisor must be positive", ErrInvalidConfig)
	case c.WinnerCount < 1:
		return fmt.Errorf("%w: winner_count must be at least 1", ErrInvalidConfig)
	case c.SnapshotDelayMS < 0 || c.StatusSyncIntervalMS < 0:
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DBConnectTimeout returns the connect timeout as a duration.
func (c *Config) DBConnectTimeout() time.Duration {
	return time.Duration(c.DBConnectTimeoutMS) * time.Millisecond
}

// SnapshotDelay returns the initial subscriber snapshot delay.
func (c *Config) SnapshotDelay() time.Duration {
	return time.Duration(c.SnapshotDelayMS) * time.Millisecond
}

// StatusSyncInterval returns the challenge status sync period.
func (c *Config) StatusSyncInterval() time.Duration {
	return time.Duration(c.StatusSyncIntervalMS) * time.Millisecond
}
