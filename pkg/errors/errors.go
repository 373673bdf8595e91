// Package errors provides structured error types for wheelwright.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the vendoring engine
//   - Machine-readable error codes for programmatic handling
//   - Per-package failure entries that never lose the underlying cause
//
// # Error Codes
//
// Error codes map onto the vendoring failure taxonomy:
//   - MALFORMED_REQUIREMENT: a root requirement string cannot be parsed (fatal)
//   - RESOLUTION_FAILED: no version satisfies a constraint, or the index has
//     no such project (recovered per package)
//   - FETCH_FAILED: source download or copy failure, including timeouts
//     (recovered per package)
//   - PLATFORM_CONFLICT: two distinct non-universal platform tags across the
//     vendored bundle (surfaced to the caller, never silently resolved)
//   - REWRITE_FAILED: source could not be scanned for import rewriting
//     (recovered per package)
//
// # Usage
//
//	err := errors.New(errors.ErrCodeMalformedRequirement, "invalid requirement: %s", raw)
//	if errors.Is(err, errors.ErrCodeMalformedRequirement) {
//	    // Abort the run; nothing can be resolved.
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetch, origErr, "download %s %s", name, version)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the vendoring failure taxonomy.
const (
	// Fatal input errors
	ErrCodeMalformedRequirement Code = "MALFORMED_REQUIREMENT"
	ErrCodeInvalidInput         Code = "INVALID_INPUT"
	ErrCodeInvalidConfig        Code = "INVALID_CONFIG"

	// Per-package recoverable errors
	ErrCodeResolution Code = "RESOLUTION_FAILED"
	ErrCodeFetch      Code = "FETCH_FAILED"
	ErrCodeRewrite    Code = "REWRITE_FAILED"

	// Bundle-level structured conflict
	ErrCodePlatformConflict Code = "PLATFORM_CONFLICT"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeProjectNotFound Code = "PROJECT_NOT_FOUND"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
