package kafka

import (
	"fmt"
	"strings"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/resilience"
)

var (
	connectionPatterns = []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no route to host",
		"network is unreachable",
		"broker not available",
		"leader not available",
		"connection closed",
		"dial tcp",
		"network exception",
	}
	retryablePatterns = []string{
		"temporary",
		"request timed out",
		"not enough replicas",
		"offset out of range",
	}
	nonRetryablePatterns = []string{
		"message too large",
		"invalid topic",
		"invalid partition",
		"unknown topic",
		"authorization failed",
	}
)

func matches(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// IsConnectionError reports a connection-level failure.
func IsConnectionError(err error) bool {
	return matches(err, connectionPatterns)
}

// IsRetryableError reports a transient failure worth retrying.
func IsRetryableError(err error) bool {
	return IsConnectionError(err) || matches(err, retryablePatterns)
}

// IsNonRetryableError reports a failure the broker will keep rejecting.
func IsNonRetryableError(err error) bool {
	return matches(err, nonRetryablePatterns)
}

// Classify annotates a client error with topic. Non-retryable errors are
// marked permanent so pipeline retries give up on them at once.
func Classify(err error, topic string) error {
	if err == nil {
		return nil
	}
	if IsNonRetryableError(err) {
		return resilience.Permanent(
			errors.InvalidInput("topic", fmt.Sprintf("kafka rejected message for %s", topic)).WithCause(err),
		)
	}
	return fmt.Errorf("kafka %s: %w", topic, err)
}
