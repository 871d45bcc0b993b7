// Package resilience provides the per-item protection patterns a flowkit
// stage can wrap around its transform function.
//
//   - Retry: reruns a failing invocation with exponential backoff
//   - Bulkhead: caps concurrent invocations, optionally across stages
//   - RateLimiter: paces invocations with a token bucket
//   - CircuitBreaker: fails calls fast while a dependency keeps failing
//
// Stages attach them through options:
//
//	shared := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "api", MaxConcurrent: 8})
//	fetch := pipeline.NewConcurrentStage("fetch", fetchFn, 16,
//	    pipeline.WithRetry(resilience.DefaultRetryConfig()),
//	    pipeline.WithBulkhead(shared),
//	)
//
// None of these are applied unless configured: a stage with no options
// runs its function exactly once per item.
package resilience
