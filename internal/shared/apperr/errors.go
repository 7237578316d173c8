package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindForbidden  Kind = "FORBIDDEN"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindTimeout    Kind = "TIMEOUT"
	KindFatal      Kind = "FATAL"
)

// Conflict sub-codes surfaced to clients so load tests can tell
// lock timeouts apart from plain seat contention.
const (
	CodeSeatUnavailable = "SEAT_UNAVAILABLE"
	CodeLockTimeout     = "LOCK_TIMEOUT"
	CodeInProgress      = "IDEMPOTENCY_IN_PROGRESS"
	CodeDuplicateSeat   = "DUPLICATE_SEAT"
	CodeQueueRequired   = "QUEUE_TOKEN_REQUIRED"
	CodeHoldExpired     = "HOLD_EXPIRED"
)

// Error is the typed error all core components return across boundaries.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error with an explicit kind and code.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Timeout(message string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: message, Err: err}
}

// Fatal wraps persistence/messaging-layer failures that are surfaced, not retried.
func Fatal(message string, err error) *Error {
	return &Error{Kind: KindFatal, Message: message, Err: err}
}

// KindOf extracts the kind from any error in the chain; unknown errors are fatal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindFatal
}

// CodeOf extracts the sub-code from a typed error, or "" for untyped errors.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsConflict reports whether err is a conflict-class failure (seat taken,
// lock timeout, idempotency key in flight).
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// As extracts the typed error from any error in the chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HTTPStatus maps a typed error to its response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
