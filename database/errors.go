package database

import (
	stderrors "errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/resilience"
)

var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"no route to host",
	"network is unreachable",
	"connection closed",
	"connection lost",
	"driver: bad connection",
	"invalid connection",
}

var transientPatterns = []string{
	"deadlock",
	"lock timeout",
	"database is locked",
	"too many connections",
	"connection pool exhausted",
}

func matchAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsConnectionError reports whether err is a connection failure.
func IsConnectionError(err error) bool {
	return err != nil && matchAny(err, connectionPatterns)
}

// IsRetryableError reports whether err may succeed when retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return IsConnectionError(err) || matchAny(err, transientPatterns)
}

// Classify wraps a database error for a stage. Retryable errors are wrapped
// plainly; everything else is marked permanent so pipeline.WithRetry gives
// up at once. Missing rows and duplicate keys become NOT_FOUND and
// INVALID_INPUT app errors.
func Classify(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		return resilience.Permanent(errors.NotFound(resource, "").WithCause(err))
	case stderrors.Is(err, gorm.ErrDuplicatedKey):
		return resilience.Permanent(errors.InvalidInput(resource, "duplicate key").WithCause(err))
	case IsRetryableError(err):
		return fmt.Errorf("database %s: %w", resource, err)
	default:
		return resilience.Permanent(fmt.Errorf("database %s: %w", resource, err))
	}
}
