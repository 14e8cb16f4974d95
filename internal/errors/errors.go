// Package errors provides centralized error definitions and handling
// utilities for the relay. It defines sentinel errors for each failure
// class, semantic error types carrying context, and classification
// helpers that decide what (if anything) may be shown to a user.
//
// The failure classes are:
//   - authorization: the caller is not permitted (never surfaced to users)
//   - validation: bad session name, bad user id, empty input
//   - capacity: a session or confirmation limit was reached
//   - tool: the agent binary is missing, exited non-zero, or misbehaved
//   - timeout: the invocation hit its hard deadline (partial output may exist)
//   - parse: the agent's output had an unexpected shape
//
// Internal error text is never echoed to users. UserMessage returns a
// short generic notice for every class except authorization, which is
// deliberately silent.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience, so callers can
// import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors, one family per failure class.
var (
	// ErrUnauthorized indicates the caller is not on the allow-list.
	ErrUnauthorized = New("unauthorized")

	// ErrEmptyInput indicates the input was empty after sanitization.
	ErrEmptyInput = New("empty input")
	// ErrInvalidSessionName indicates a session name failed validation.
	ErrInvalidSessionName = New("invalid session name")
	// ErrSessionExists indicates a session with the requested name already exists.
	ErrSessionExists = New("session already exists")
	// ErrSessionNotFound indicates the named session does not exist.
	ErrSessionNotFound = New("session not found")

	// ErrSessionCapacity indicates the per-user session limit was reached
	// and no eviction candidate was available.
	ErrSessionCapacity = New("session capacity reached")
	// ErrBatchCapacity indicates the explicit batch item cap was reached.
	ErrBatchCapacity = New("batch capacity reached")

	// ErrToolNotFound indicates the agent binary could not be located.
	ErrToolNotFound = New("agent tool not found")
	// ErrToolFailed indicates the agent process exited non-zero.
	ErrToolFailed = New("agent tool failed")

	// ErrTimeout indicates the invocation exceeded its hard deadline.
	ErrTimeout = New("invocation timed out")

	// ErrParse indicates the agent output could not be interpreted.
	ErrParse = New("failed to parse response")
)

// ToolError wraps a tool failure with the exit code and captured stderr.
type ToolError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%v (exit code %d): %s", e.Err, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%v (exit code %d)", e.Err, e.ExitCode)
}

func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a ToolError for a non-zero exit.
func NewToolError(exitCode int, stderr string) *ToolError {
	return &ToolError{ExitCode: exitCode, Stderr: stderr, Err: ErrToolFailed}
}

// ValidationError wraps a validation failure with the offending field.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a ValidationError wrapping the given sentinel.
func NewValidationError(field, value string, err error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Err: err}
}

// IsAuthorization reports whether err is an authorization failure.
func IsAuthorization(err error) bool {
	return Is(err, ErrUnauthorized)
}

// IsTimeout reports whether err is a timeout failure.
func IsTimeout(err error) bool {
	return Is(err, ErrTimeout)
}

// IsCapacity reports whether err is a capacity failure.
func IsCapacity(err error) bool {
	return Is(err, ErrSessionCapacity) || Is(err, ErrBatchCapacity)
}

// UserMessage returns the short, non-leaking notice to show a user for
// the given error. Authorization failures return an empty string: the
// caller should send nothing at all, to avoid revealing which user ids
// exist.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrUnauthorized):
		return ""
	case Is(err, ErrEmptyInput):
		return "The message was empty. Please send some text."
	case Is(err, ErrInvalidSessionName):
		return "Session names may only use letters, digits, dashes and underscores (max 32 characters)."
	case Is(err, ErrSessionExists):
		return "A session with that name already exists."
	case Is(err, ErrSessionNotFound):
		return "No session with that name."
	case Is(err, ErrSessionCapacity):
		return "Session limit reached. Delete a session and try again."
	case Is(err, ErrBatchCapacity):
		return "Batch is full. Send /accept to dispatch it or /cancel to discard it."
	case Is(err, ErrToolNotFound):
		return "The coding agent is not available right now."
	case Is(err, ErrTimeout):
		return "The request timed out."
	case Is(err, ErrParse):
		return "The agent returned an unreadable response."
	default:
		return "Something went wrong. Please try again."
	}
}
