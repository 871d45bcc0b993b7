package errors

import "net/http"

var httpStatuses = map[ErrorCode]int{
	ErrCodeInvalidTopology:  http.StatusBadRequest,
	ErrCodeInvalidInput:     http.StatusBadRequest,
	ErrCodeNotFound:         http.StatusNotFound,
	ErrCodeStageFailed:      http.StatusInternalServerError,
	ErrCodeUpstreamFailed:   http.StatusBadGateway,
	ErrCodeAborted:          http.StatusConflict,
	ErrCodeDownstreamClosed: http.StatusGone,
	ErrCodeCanceled:         499,
	ErrCodeInternal:         http.StatusInternalServerError,
}

// HTTPStatus returns the recommended HTTP status for err. Errors that are
// not AppErrors, or carry an unknown code, map to 500.
func HTTPStatus(err error) int {
	appErr, ok := AsAppError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if status, ok := httpStatuses[appErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
