package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/flowkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// Enabled turns the exporter on. Stages still record to the global
	// provider, which is a no-op until one is installed.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ServiceName is the name of the service.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	// ServiceVersion is the version of the service.
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	// Environment is the deployment environment (dev, staging, prod).
	Environment string `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	// Insecure allows insecure connections (for development).
	Insecure bool `yaml:"insecure" mapstructure:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Outcome classifies what a stage did with one item.
type Outcome string

const (
	OutcomeEmitted   Outcome = "emitted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeForwarded Outcome = "forwarded"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeFailed    Outcome = "failed"
)

// Instrument names.
const (
	MetricItemsReceived = "flowkit.stage.items.received"
	MetricItemsHandled  = "flowkit.stage.items.handled"
	MetricItemsInFlight = "flowkit.stage.items.inflight"
	MetricItemDuration  = "flowkit.stage.item.duration"
	MetricStageFailures = "flowkit.stage.failures"
)

// StageMetrics holds the instruments every stage records into.
type StageMetrics struct {
	received metric.Int64Counter
	handled  metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	duration metric.Float64Histogram
	failures metric.Int64Counter
}

// NewStageMetrics creates stage instruments on the given meter.
func NewStageMetrics(meter metric.Meter) (*StageMetrics, error) {
	received, err := meter.Int64Counter(MetricItemsReceived,
		metric.WithDescription("Items admitted into a stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricItemsReceived, err)
	}

	handled, err := meter.Int64Counter(MetricItemsHandled,
		metric.WithDescription("Items a stage finished handling, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricItemsHandled, err)
	}

	inFlight, err := meter.Int64UpDownCounter(MetricItemsInFlight,
		metric.WithDescription("Stage function invocations currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricItemsInFlight, err)
	}

	duration, err := meter.Float64Histogram(MetricItemDuration,
		metric.WithDescription("Duration of one stage function invocation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricItemDuration, err)
	}

	failures, err := meter.Int64Counter(MetricStageFailures,
		metric.WithDescription("Fatal stage failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricStageFailures, err)
	}

	return &StageMetrics{
		received: received,
		handled:  handled,
		inFlight: inFlight,
		duration: duration,
		failures: failures,
	}, nil
}

// ItemStarted records an item entering the stage function.
func (m *StageMetrics) ItemStarted(ctx context.Context, stage string) {
	attrs := metric.WithAttributes(attribute.String(AttrStageName, stage))
	m.received.Add(ctx, 1, attrs)
	m.inFlight.Add(ctx, 1, attrs)
}

// ItemFinished records the outcome and duration of one invocation.
func (m *StageMetrics) ItemFinished(ctx context.Context, stage string, outcome Outcome, d time.Duration) {
	m.inFlight.Add(ctx, -1, metric.WithAttributes(attribute.String(AttrStageName, stage)))
	m.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStageName, stage),
		attribute.String(AttrOutcome, string(outcome)),
	))
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(AttrStageName, stage)))
}

// StageFailed records a fatal failure of stage.
func (m *StageMetrics) StageFailed(ctx context.Context, stage, code string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrStageName, stage),
		attribute.String("code", code),
	))
}
