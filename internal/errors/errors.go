// Package errors provides the structured error type used across docdex.
// It distinguishes the failure classes that callers handle differently:
// invalid input (rejected synchronously), not-found (a normal outcome),
// engine failures (transient, retryable), and corrupt records (skippable).
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an error for handling and presentation.
type Code string

const (
	// CodeInvalidInput marks caller errors rejected before any store mutation.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks a missing job, collection, fingerprint, or cache entry.
	CodeNotFound Code = "not_found"
	// CodeEngineUnavailable marks a transport or subprocess failure of the
	// external retrieval engine.
	CodeEngineUnavailable Code = "engine_unavailable"
	// CodeEngineTimeout marks an engine call that exceeded its deadline.
	CodeEngineTimeout Code = "engine_timeout"
	// CodeCorruptRecord marks a persisted record that failed to decode.
	CodeCorruptRecord Code = "corrupt_record"
	// CodeStorage marks an unexpected failure of the backing store itself.
	CodeStorage Code = "storage"
)

// Error is the structured error type for docdex.
type Error struct {
	// Code is the failure class.
	Code Code

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates if the operation can be retried as-is.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works with code sentinels.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: retryable(code),
	}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable(code),
	}
}

// InvalidInput creates an invalid-input error.
func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound creates a not-found error for an entity and key.
func NotFound(entity, key string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", entity, key))
}

// IsNotFound reports whether err is (or wraps) a not-found error.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsInvalidInput reports whether err is (or wraps) an invalid-input error.
func IsInvalidInput(err error) bool {
	return HasCode(err, CodeInvalidInput)
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// retryable derives the retryable flag from the code.
func retryable(code Code) bool {
	switch code {
	case CodeEngineUnavailable, CodeEngineTimeout:
		return true
	default:
		return false
	}
}
