package pipeline

import (
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/resilience"
)

// DefaultBufferSize is the inbox capacity of a stage when none is configured.
const DefaultBufferSize = 16

// Error policies, in precedence order.
const (
	PolicyIgnore  = "ignore"
	PolicyForward = "forward"
	PolicyFail    = "fail"
)

// Formatter renders a failing input for its StreamError record.
type Formatter func(any) (any, error)

// Option configures a stage, source, or error channel.
type Option func(*settings)

type settings struct {
	name        string
	ignore      bool
	forward     bool
	formatter   Formatter
	buffer      int
	concurrency int
	queueLimit  int
	log         *logger.Logger
	metrics     *observability.StageMetrics
	tracing     bool
	retry       *resilience.RetryConfig
	bulkhead    *resilience.Bulkhead
	limiter     *resilience.RateLimiter
	breaker     *resilience.CircuitBreaker
}

func newSettings(name string, opts []Option) *settings {
	s := &settings{
		name:   name,
		buffer: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get("pipeline")
	}
	return s
}

func (s *settings) policy() string {
	switch {
	case s.ignore:
		return PolicyIgnore
	case s.forward:
		return PolicyForward
	default:
		return PolicyFail
	}
}

// WithName overrides the stage name used in logs, metrics and records.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// IgnoreErrors drops items whose function fails. It takes precedence over
// PushErrorsForward.
func IgnoreErrors() Option {
	return func(s *settings) { s.ignore = true }
}

// PushErrorsForward emits a StreamError record in place of a failing item.
func PushErrorsForward() Option {
	return func(s *settings) { s.forward = true }
}

// WithFormatter sets how failing inputs are rendered into records. If the
// formatter fails or panics the raw input is used.
func WithFormatter(f Formatter) Option {
	return func(s *settings) { s.formatter = f }
}

// WithBuffer sets the inbox capacity. Zero makes every delivery a handoff.
func WithBuffer(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.buffer = n
		}
	}
}

// WithConcurrency sets the worker count of a concurrent stage.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.concurrency = n }
}

// WithQueueLimit bounds the work queue of a concurrent stage. While the
// queue holds n items the stage stops reading its inbox. Zero means unbounded.
func WithQueueLimit(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.queueLimit = n
		}
	}
}

// WithLogger sets the logger a stage reports its lifecycle to.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithMetrics records per-item instruments into m.
func WithMetrics(m *observability.StageMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracing wraps each invocation in a span.
func WithTracing() Option {
	return func(s *settings) { s.tracing = true }
}

// WithRetry reruns a failing invocation before the error policy applies.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *settings) { s.retry = &cfg }
}

// WithBulkhead holds a slot of b for every invocation.
func WithBulkhead(b *resilience.Bulkhead) Option {
	return func(s *settings) { s.bulkhead = b }
}

// WithRateLimiter waits on rl before every invocation.
func WithRateLimiter(rl *resilience.RateLimiter) Option {
	return func(s *settings) { s.limiter = rl }
}

// WithCircuitBreaker runs every invocation through cb. While cb is open
// invocations fail with resilience.ErrCircuitOpen without calling the
// function.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *settings) { s.breaker = cb }
}

// WithConfig applies a StageConfig, typically loaded by the config package.
func WithConfig(cfg StageConfig) Option {
	return func(s *settings) {
		for _, opt := range cfg.Options() {
			opt(s)
		}
	}
}

// StageConfig is the file/env representation of stage options.
type StageConfig struct {
	// ErrorPolicy is one of ignore, forward or fail.
	ErrorPolicy string `yaml:"error_policy" mapstructure:"error_policy" validate:"omitempty,oneof=ignore forward fail"`
	// Buffer is the inbox capacity. Nil keeps the default.
	Buffer *int `yaml:"buffer" mapstructure:"buffer" validate:"omitempty,gte=0"`
	// Concurrency overrides the worker count of a concurrent stage.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=0"`
	// QueueLimit bounds a concurrent stage's work queue.
	QueueLimit int `yaml:"queue_limit" mapstructure:"queue_limit" validate:"gte=0"`
	// Tracing enables per-item spans.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
	// Retry enables retries when set.
	Retry *resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
	// RateLimit caps invocations per second when positive.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
	// Burst is the rate limiter burst size.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	// CircuitBreaker guards the function with a breaker of its own when set.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// Options converts the config into stage options.
func (c StageConfig) Options() []Option {
	var opts []Option
	switch c.ErrorPolicy {
	case PolicyIgnore:
		opts = append(opts, IgnoreErrors())
	case PolicyForward:
		opts = append(opts, PushErrorsForward())
	}
	if c.Buffer != nil {
		opts = append(opts, WithBuffer(*c.Buffer))
	}
	if c.Concurrency > 0 {
		opts = append(opts, WithConcurrency(c.Concurrency))
	}
	if c.QueueLimit > 0 {
		opts = append(opts, WithQueueLimit(c.QueueLimit))
	}
	if c.Tracing {
		opts = append(opts, WithTracing())
	}
	if c.Retry != nil {
		opts = append(opts, WithRetry(*c.Retry))
	}
	if c.RateLimit > 0 {
		opts = append(opts, WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Rate:  c.RateLimit,
			Burst: c.Burst,
		})))
	}
	if c.CircuitBreaker != nil {
		opts = append(opts, WithCircuitBreaker(resilience.NewCircuitBreaker(*c.CircuitBreaker)))
	}
	return opts
}
