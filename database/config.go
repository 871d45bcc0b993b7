package database

import (
	"fmt"
	"time"

	"github.com/kbukum/flowkit/validation"
)

// Config holds database connection configuration.
type Config struct {
	// DSN is the driver connection string.
	DSN string `yaml:"dsn" mapstructure:"dsn" validate:"required"`

	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime" validate:"gte=0"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time" validate:"gte=0"`

	// MaxRetries is the number of connection attempts before giving up.
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff" validate:"gte=0"`

	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel           string        `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=silent error warn info"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" mapstructure:"slow_query_threshold" validate:"gte=0"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.SlowQueryThreshold == 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) must be <= max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}
