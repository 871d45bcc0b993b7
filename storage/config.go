package storage

import (
	"context"
	"fmt"

	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/validation"
)

// Supported providers.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

// Config selects and configures a Store backend.
type Config struct {
	// Provider is "local" or "s3".
	Provider string `yaml:"provider" mapstructure:"provider" validate:"required,oneof=local s3"`

	// BasePath is the root directory for the local provider.
	BasePath string `yaml:"base_path" mapstructure:"base_path" validate:"required_if=Provider local"`

	Bucket string `yaml:"bucket" mapstructure:"bucket" validate:"required_if=Provider s3"`
	Region string `yaml:"region" mapstructure:"region" validate:"required_if=Provider s3"`
	// Endpoint is a custom S3-compatible endpoint, e.g. MinIO. It implies
	// path-style addressing.
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKey      string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey      string `yaml:"secret_key" mapstructure:"secret_key" validate:"required_with=AccessKey"`
	ForcePathStyle bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderLocal
	}
	if c.Provider == ProviderLocal && c.BasePath == "" {
		c.BasePath = "/tmp/flowkit-storage"
	}
	if c.Provider == ProviderS3 && c.Region == "" {
		c.Region = "us-east-1"
	}
}

// Validate checks the configuration for the selected provider.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// New creates the Store selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storage config: %w", err)
	}

	logger.Get("storage").Info("object store configured", logger.Fields(
		"provider", cfg.Provider,
		"bucket", cfg.Bucket,
		"base_path", cfg.BasePath,
	))
	switch cfg.Provider {
	case ProviderS3:
		return NewS3(ctx, cfg)
	default:
		return NewLocal(cfg.BasePath)
	}
}
