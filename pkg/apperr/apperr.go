// Package apperr defines the stable error kinds surfaced by session operations.
// The HTTP layer maps kinds to status codes; services never import net/http.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind int

const (
	// KindUnknown is an unclassified internal failure.
	KindUnknown Kind = iota
	// KindNotFound means the session, participant or room does not exist.
	KindNotFound
	// KindForbidden means the caller may not perform a host-only action.
	KindForbidden
	// KindInvalidState means the operation is not valid for the current status.
	KindInvalidState
	// KindCapacityExceeded means the session or breakout room is full.
	KindCapacityExceeded
	// KindProvider means a third-party provider call failed.
	KindProvider
)

// String returns the kind name as used in logs and API error payloads.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindProvider:
		return "provider_error"
	default:
		return "internal"
	}
}

// Error carries a kind and a human-readable reason.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns a not_found error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden returns a forbidden error.
func Forbidden(format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// InvalidState returns an invalid_state error.
func InvalidState(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

// CapacityExceeded returns a capacity_exceeded error.
func CapacityExceeded(format string, args ...interface{}) error {
	return &Error{Kind: KindCapacityExceeded, Msg: fmt.Sprintf(format, args...)}
}

// Provider wraps a failed provider call.
func Provider(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindProvider, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or KindUnknown for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
