package core

import (
	"errors"
	"fmt"
)

// Error kinds form a closed set. Only KindUnavailable is safe for the
// caller to retry; every other kind means the request as given will
// never succeed.
const (
	KindInvalidArgument   = "invalid_argument"
	KindNotFound          = "not_found"
	KindDuplicateIdentity = "duplicate_identity"
	KindUnauthenticated   = "unauthenticated"
	KindPayloadTooLarge   = "payload_too_large"
	KindUnavailable       = "unavailable"
	KindInternal          = "internal"
)

// Error is a domain error carrying a stable kind and a message that is
// safe to surface to the caller.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message.
func Errorf(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and safe message to an underlying error.
// The underlying error is kept for logging but never shown to callers.
func WrapError(kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind string) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// MapError converts any error into the envelope error shape. Errors
// without a kind become KindInternal with a generic message so internal
// detail never leaks across the facade boundary.
func MapError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &ToolError{Kind: e.Kind, Message: e.Message}
	}
	return &ToolError{Kind: KindInternal, Message: "internal error"}
}

// Retryable reports whether the caller may safely retry the request
// that produced err.
func Retryable(err error) bool {
	return IsKind(err, KindUnavailable)
}
