// Package apperrors provides the error taxonomy for a deploy run.
// Every class is terminal: nothing in the pipeline recovers from one.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrConfiguration = errors.New("configuration error")
	ErrResolution    = errors.New("resolution error")
	ErrRemote        = errors.New("remote api error")
	ErrTransport     = errors.New("transport error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For configuration errors (e.g., "apiUrl", "artifact")
	Op       string // Operation that failed (e.g., "panel.listFiles")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns both the sentinel and the cause so errors.Is and errors.As
// see through to either.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Configuration creates a configuration error for a specific input.
func Configuration(field, message string) error {
	return &Error{
		Sentinel: ErrConfiguration,
		Message:  message,
		Field:    field,
	}
}

// Resolution creates an error for a glob that matched nothing usable.
func Resolution(message string) error {
	return &Error{
		Sentinel: ErrResolution,
		Message:  message,
	}
}

// Remote wraps an error payload returned by the panel API.
// The message is the cause's message verbatim.
func Remote(op string, cause error) error {
	return &Error{
		Sentinel: ErrRemote,
		Message:  cause.Error(),
		Op:       op,
		Cause:    cause,
	}
}

// Transport wraps a network, status or decoding failure.
func Transport(op string, cause error) error {
	return &Error{
		Sentinel: ErrTransport,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
