package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/resilience"
)

// DB wraps a GORM database with flowkit logging.
type DB struct {
	gorm   *gorm.DB
	log    *logger.Logger
	mu     sync.Mutex
	closed bool
}

// Open connects through dialector, retrying failed attempts with backoff
// until cfg.MaxRetries is exhausted or ctx ends.
func Open(ctx context.Context, dialector gorm.Dialector, cfg Config) (*DB, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}

	log := logger.Get("database")
	gormCfg := &gorm.Config{
		Logger:         newGormLogger(log, cfg.SlowQueryThreshold, parseLogLevel(cfg.LogLevel)),
		TranslateError: true,
	}

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.MaxRetries,
		InitialBackoff: cfg.RetryBackoff,
		BackoffFactor:  2,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			log.Warn("database connection attempt failed, retrying", logger.Fields(
				"attempt", attempt,
				logger.FieldError, err.Error(),
				"backoff", backoff.String(),
			))
		},
	}
	db, err := resilience.Retry(ctx, retry, func(ctx context.Context) (*gorm.DB, error) {
		db, err := gorm.Open(dialector, gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", cfg.MaxRetries, err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	log.Info("database connection established", logger.Fields("dialect", dialector.Name()))
	return &DB{gorm: db, log: log}, nil
}

// OpenSQLite opens the SQLite database named by cfg.DSN.
func OpenSQLite(ctx context.Context, cfg Config) (*DB, error) {
	return Open(ctx, sqlite.Open(cfg.DSN), cfg)
}

// PingContext verifies the connection is alive.
func (d *DB) PingContext(ctx context.Context) error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithContext returns a GORM session scoped to ctx.
func (d *DB) WithContext(ctx context.Context) *gorm.DB {
	return d.gorm.WithContext(ctx)
}

// AutoMigrate runs GORM auto-migration for models.
func (d *DB) AutoMigrate(models ...any) error {
	for _, model := range models {
		if err := d.gorm.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	d.log.Debug("auto-migration completed", logger.Fields("models", len(models)))
	return nil
}

// WithTransaction runs fn in a transaction, rolling back when fn returns an
// error or panics.
func (d *DB) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.gorm.WithContext(ctx).Transaction(fn)
}

// Close closes the connection pool. Safe to call more than once.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	d.closed = true
	d.log.Info("closing database connection")
	return sqlDB.Close()
}

// Gorm returns the underlying GORM handle.
func (d *DB) Gorm() *gorm.DB {
	return d.gorm
}
