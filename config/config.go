package config

import (
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/monitor"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/pipeline"
	"github.com/kbukum/flowkit/validation"
)

// Environments accepted in Config.Environment.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config is the complete configuration of a process running pipelines.
//
// Stage settings are keyed by stage name and applied with
// pipeline.WithConfig:
//
//	stage := pipeline.NewStage("parse", parse, pipeline.WithConfig(cfg.Stage("parse")))
type Config struct {
	// Name identifies the process in logs, spans, metrics and the monitor.
	Name        string `yaml:"name" mapstructure:"name" env:"FLOWKIT_NAME" validate:"required"`
	Environment string `yaml:"environment" mapstructure:"environment" env:"FLOWKIT_ENV" validate:"oneof=development staging production"`
	Version     string `yaml:"version" mapstructure:"version" env:"FLOWKIT_VERSION"`

	Logging logger.Config                   `yaml:"logging" mapstructure:"logging"`
	Tracing observability.TracerConfig      `yaml:"tracing" mapstructure:"tracing"`
	Metrics observability.MeterConfig       `yaml:"metrics" mapstructure:"metrics"`
	Monitor monitor.Config                  `yaml:"monitor" mapstructure:"monitor"`
	Stages  map[string]pipeline.StageConfig `yaml:"stages" mapstructure:"stages" validate:"dive"`
}

// ApplyDefaults fills unset fields. Development runs log at debug level to
// the console, other environments log JSON. Tracing and metrics inherit
// the process identity.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.Environment == EnvDevelopment {
		if c.Logging.Level == "" {
			c.Logging.Level = "debug"
		}
	} else if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	c.Logging.ApplyDefaults()
	c.Monitor.ApplyDefaults()

	inherit(&c.Tracing.ServiceName, c.Name)
	inherit(&c.Tracing.ServiceVersion, c.Version)
	inherit(&c.Tracing.Environment, c.Environment)
	inherit(&c.Metrics.ServiceName, c.Name)
	inherit(&c.Metrics.ServiceVersion, c.Version)
	inherit(&c.Metrics.Environment, c.Environment)
}

func inherit(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Validate checks the struct tags of the whole tree, stage settings
// included.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Stage returns the settings for the named stage, or the zero value
// which changes nothing.
func (c *Config) Stage(name string) pipeline.StageConfig {
	return c.Stages[name]
}

// Load reads, defaults and validates the configuration of a process in one
// call. An empty name is taken from serviceName.
func Load(serviceName string, opts ...LoaderOption) (*Config, error) {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	var cfg Config
	if err := l.read(serviceName, &cfg); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
