package kafka

import (
	"fmt"
	"time"

	"github.com/kbukum/flowkit/validation"
)

// Config holds Kafka connection and client behavior configuration.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `yaml:"brokers" mapstructure:"brokers" validate:"required,dive,hostname_port"`
	// GroupID is the consumer group. Without it readers consume a single
	// partition and cannot commit.
	GroupID string `yaml:"group_id" mapstructure:"group_id"`

	EnableTLS     bool   `yaml:"enable_tls" mapstructure:"enable_tls"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify" mapstructure:"tls_skip_verify"`
	TLSCAFile     string `yaml:"tls_ca_file" mapstructure:"tls_ca_file"`
	TLSCertFile   string `yaml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile    string `yaml:"tls_key_file" mapstructure:"tls_key_file"`

	EnableSASL    bool   `yaml:"enable_sasl" mapstructure:"enable_sasl"`
	SASLMechanism string `yaml:"sasl_mechanism" mapstructure:"sasl_mechanism" validate:"omitempty,oneof=PLAIN SCRAM-SHA-256 SCRAM-SHA-512"`
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`

	// Compression is one of none, gzip, snappy, lz4, zstd.
	Compression  string        `yaml:"compression" mapstructure:"compression" validate:"omitempty,oneof=none gzip snappy lz4 zstd"`
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=0"`
	BatchTimeout time.Duration `yaml:"batch_timeout" mapstructure:"batch_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	RequiredAcks int           `yaml:"required_acks" mapstructure:"required_acks" validate:"gte=-1,lte=1"`

	MinBytes          int           `yaml:"min_bytes" mapstructure:"min_bytes" validate:"gte=0"`
	MaxBytes          int           `yaml:"max_bytes" mapstructure:"max_bytes" validate:"gte=0"`
	SessionTimeout    time.Duration `yaml:"session_timeout" mapstructure:"session_timeout" validate:"gte=0"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval" validate:"gte=0"`
	DialTimeout       time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gte=0"`
	MetadataTTL       time.Duration `yaml:"metadata_ttl" mapstructure:"metadata_ttl" validate:"gte=0"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Compression == "" {
		c.Compression = "snappy"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = -1 // all replicas
	}
	if c.MinBytes == 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 10e6
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 3 * time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.MetadataTTL == 0 {
		c.MetadataTTL = 6 * time.Second
	}
	if c.SASLMechanism == "" && c.EnableSASL {
		c.SASLMechanism = "PLAIN"
	}
}

// Validate checks struct tags, then the rules spanning several fields.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.EnableSASL && c.Username == "" {
		return fmt.Errorf("kafka: SASL username is required")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("kafka: tls_cert_file and tls_key_file must be set together")
	}
	return nil
}
