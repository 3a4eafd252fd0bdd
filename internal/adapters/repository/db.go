package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver for database/sql
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormprom "gorm.io/plugin/prometheus"

	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/pkg/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	defaultMaxOpenConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnectTimeout  = 5 * time.Second
	defaultOpenAttempts    = 5
	defaultRetryDelay      = 2 * time.Second
	metricsRefreshSeconds  = 15
)

// DBConfig describes how to reach the database.
type DBConfig struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
	MaxOpenConns   int
	// Metrics registers the gorm prometheus plugin on the default registry.
	Metrics bool
	// Attempts and RetryDelay control the startup retry loop.
	Attempts   int
	RetryDelay time.Duration
}

// Connect opens a postgres pool through lib/pq and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxOpenConns int, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: create database handle: %w", ErrStore, err)
	}
	if maxOpenConns < 1 {
		maxOpenConns = defaultMaxOpenConns
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database within %v: %w", ErrStore, timeout, err)
	}
	return db, nil
}

// Open returns a gorm handle for cfg, retrying while the database is not ready.
func Open(ctx context.Context, cfg DBConfig, log logger.Logger) (*gorm.DB, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = defaultOpenAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	var (
		db  *gorm.DB
		err error
	)
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		db, err = open(ctx, cfg, log)
		if err == nil {
			break
		}
		log.Warn(ctx, "database not ready",
			logger.String("driver", cfg.Driver),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		if attempt == cfg.Attempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrStore, ctx.Err())
		case <-time.After(cfg.RetryDelay):
		}
	}

	if cfg.Metrics {
		if err := db.Use(gormprom.New(gormprom.Config{
			DBName:          cfg.Driver,
			RefreshInterval: metricsRefreshSeconds,
		})); err != nil {
			return nil, fmt.Errorf("%w: register db metrics: %w", ErrStore, err)
		}
	}
	log.Info(ctx, "database connection configured", logger.String("driver", cfg.Driver))
	return db, nil
}

func open(ctx context.Context, cfg DBConfig, log logger.Logger) (*gorm.DB, error) {
	gcfg := &gorm.Config{Logger: NewGormLogger(log), TranslateError: true}

	switch cfg.Driver {
	case DriverPostgres:
		sqlDB, err := Connect(ctx, cfg.DSN, cfg.MaxOpenConns, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gcfg)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%w: open gorm: %w", ErrStore, err)
		}
		return db, nil
	case DriverSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite: %w", ErrStore, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStore, err)
		}
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%w: ping sqlite: %w", ErrStore, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// Migrate creates or updates every table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrStore, err)
	}
	return nil
}

// NewTestStore returns a migrated store on a private in-memory SQLite database.
func NewTestStore(ctx context.Context, opts ...Option) (*GormStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := open(ctx, DBConfig{Driver: DriverSQLite, DSN: dsn, ConnectTimeout: defaultConnectTimeout}, logger.Named("sqlite-test"))
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return NewGormStore(db, opts...), nil
}
