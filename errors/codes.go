package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Usage errors, reported synchronously by composer calls.
const (
	// ErrCodeInvalidTopology indicates a malformed connection request.
	ErrCodeInvalidTopology ErrorCode = "INVALID_TOPOLOGY"
	// ErrCodeInvalidInput indicates invalid configuration or arguments.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotFound indicates a lookup, such as a stage by ID, found nothing.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Stage lifecycle errors
const (
	// ErrCodeStageFailed indicates a stage's own function failed with no policy to absorb it.
	ErrCodeStageFailed ErrorCode = "STAGE_FAILED"
	// ErrCodeUpstreamFailed indicates a producer feeding this stage failed.
	ErrCodeUpstreamFailed ErrorCode = "UPSTREAM_FAILED"
	// ErrCodeAborted indicates the stage was destroyed from outside, e.g. by sibling abort.
	ErrCodeAborted ErrorCode = "ABORTED"
	// ErrCodeDownstreamClosed indicates every consumer of the stage went away.
	ErrCodeDownstreamClosed ErrorCode = "DOWNSTREAM_CLOSED"
	// ErrCodeCanceled indicates the caller's context ended the run.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected failure inside the engine.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeStageFailed:      true,
	ErrCodeUpstreamFailed:   false,
	ErrCodeAborted:          false,
	ErrCodeDownstreamClosed: false,
	ErrCodeCanceled:         false,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
