// Package errors defines the error taxonomy shared by the store, the
// redaction guard and the HTTP layer. Callers wrap these sentinels with
// fmt.Errorf("%w: ...") and the transport maps them once, at the boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation covers bad input: empty or oversized message bodies.
	ErrValidation = fmt.Errorf("invalid input")
	// ErrPermission is returned when a non-privileged actor attempts a
	// redaction or a clear.
	ErrPermission = fmt.Errorf("permission denied")
	// ErrPrecondition is returned when redacting a message nobody has
	// acknowledged yet.
	ErrPrecondition = fmt.Errorf("precondition failed")
	// ErrNotFound is returned for unknown or purged message ids. Services
	// racing with a clear treat it as already-resolved.
	ErrNotFound = fmt.Errorf("message not found")
	// ErrAlreadyRedacted marks a repeated redaction. It is surfaced as a
	// no-op success so client retries stay safe.
	ErrAlreadyRedacted = fmt.Errorf("message already redacted")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// MapToHTTPStatus converts a domain error into the HTTP status code served
// at the API boundary.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
