package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("test-service")
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("rate=%v", tc.rate), func(t *testing.T) {
			if got := sampler(tc.rate).Description(); got != tc.want {
				t.Errorf("sampler(%v) = %s, want %s", tc.rate, got, tc.want)
			}
		})
	}
}

func TestNewStageMetricsNoop(t *testing.T) {
	m, err := NewStageMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}
	ctx := context.Background()
	m.ItemStarted(ctx, "parse")
	m.ItemFinished(ctx, "parse", OutcomeEmitted, 10*time.Millisecond)
	m.StageFailed(ctx, "parse", "STAGE_FAILED")
}

func TestStageMetricsRecorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewStageMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.ItemStarted(ctx, "parse")
	}
	m.ItemFinished(ctx, "parse", OutcomeEmitted, time.Millisecond)
	m.ItemFinished(ctx, "parse", OutcomeEmitted, time.Millisecond)
	m.ItemFinished(ctx, "parse", OutcomeForwarded, time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if data, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					key := md.Name
					if v, ok := dp.Attributes.Value(attribute.Key(AttrOutcome)); ok {
						key += "/" + v.AsString()
					}
					sums[key] += dp.Value
				}
			}
		}
	}

	want := map[string]int64{
		MetricItemsReceived:                    3,
		MetricItemsInFlight:                    0,
		MetricItemsHandled + "/" + "emitted":   2,
		MetricItemsHandled + "/" + "forwarded": 1,
	}
	for k, v := range want {
		if sums[k] != v {
			t.Errorf("%s = %d, want %d (all: %v)", k, sums[k], v, sums)
		}
	}
}

func TestItemSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartItemSpan(context.Background(), "parse", "id-1")
	EndItemSpan(span, OutcomeFailed, fmt.Errorf("bad item"))

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	s := ended[0]
	if s.Name() != SpanStageItem {
		t.Errorf("unexpected span name %q", s.Name())
	}
	attrs := map[attribute.Key]string{}
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	if attrs[AttrStageName] != "parse" || attrs[AttrOutcome] != "failed" {
		t.Errorf("unexpected attributes %v", attrs)
	}
	if len(s.Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}

func TestSetSpanErrorNoSpan(t *testing.T) {
	SetSpanError(context.Background(), fmt.Errorf("ignored"))
}

type fixedChecker Health

func (f fixedChecker) CheckHealth(context.Context) Health { return Health(f) }

func TestServiceHealth_AddComponent(t *testing.T) {
	sh := NewServiceHealth("ingest", "1.0.0")

	sh.AddComponent(Health{Name: "parse", Status: HealthStatusUp})
	if sh.Status != HealthStatusUp {
		t.Errorf("expected status 'up' after healthy stage, got %s", sh.Status)
	}

	sh.AddComponent(Health{Name: "enrich", Status: HealthStatusDegraded})
	if sh.Status != HealthStatusDegraded {
		t.Errorf("expected status 'degraded', got %s", sh.Status)
	}

	sh.AddComponent(Health{Name: "store", Status: HealthStatusDown})
	sh.AddComponent(Health{Name: "late", Status: HealthStatusDegraded})
	if sh.Status != HealthStatusDown {
		t.Errorf("expected 'down' not overridden by 'degraded', got %s", sh.Status)
	}
}

func TestCheck(t *testing.T) {
	sh := Check(context.Background(), "ingest", "1.0.0",
		fixedChecker{Name: "a", Status: HealthStatusUp},
		fixedChecker{Name: "b", Status: HealthStatusDown},
	)
	if sh.Status != HealthStatusDown || len(sh.Components) != 2 {
		t.Errorf("unexpected service health %+v", sh)
	}
}
