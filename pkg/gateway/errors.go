package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway error and determines its HTTP status.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindUnavailable
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// String returns a short name for logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is the error type returned across gateway layers.
type Error struct {
	Kind Kind

	// Message is safe to show to the caller.
	Message string

	// Detail distinguishes causes sharing a kind, such as a timeout versus
	// a client cancellation behind the same 503.
	Detail string

	// Cause is the underlying error, logged but never shown to callers.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// InvalidRequest returns a 400 error.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated returns a 401 error.
func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// Forbidden returns a 403 error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict returns a 409 error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// RateLimited returns the 429 error for an exhausted daily cap.
func RateLimited(dailyCap int) *Error {
	return &Error{
		Kind: KindRateLimited,
		Message: fmt.Sprintf(
			"The event daily request rate of %d calls has been exceeded. Requests are disabled until UTC midnight.",
			dailyCap),
	}
}

// Unavailable returns a 503 error for an upstream failure.
func Unavailable(detail string, cause error) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Message: "The upstream service is unavailable",
		Detail:  detail,
		Cause:   cause,
	}
}

// Internal wraps an unexpected failure as a 500 error.
func Internal(cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: "An internal error occurred. Please try again later.",
		Cause:   cause,
	}
}

// KindOf returns the kind of err, or KindInternal when err is not a
// gateway error.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindInternal
}
