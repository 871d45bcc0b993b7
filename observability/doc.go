// Package observability provides OpenTelemetry tracing and metrics for
// flowkit stages.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("ingest"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("ingest"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewStageMetrics(observability.Meter("ingest"))
//	stage := pipeline.NewStage("parse", parse, pipeline.WithMetrics(metrics))
//
// Health:
//
//	health := observability.NewServiceHealth("ingest", "1.0.0")
//	health.AddComponent(stage.CheckHealth(ctx))
package observability
