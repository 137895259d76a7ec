// Package errors provides structured error types for arduci.
//
// Errors carry a machine-readable [Code] so the CLI can tell recoverable
// conditions (a dependency that failed to install, a single failed compile)
// from fatal ones (a platform referenced by name that does not exist).
//
// # Error Codes
//
//   - INVALID_*: malformed input (configuration, library metadata, paths)
//   - UNKNOWN_PLATFORM: a platform name that no configuration tier defines
//   - INSTALL_FAILED, BUILD_FAILED, TOOL_FAILED: external collaborator failures
//   - RUNTIME_MISSING: a test build was requested before the shared runtime
//   - INTERNAL_ERROR: unexpected internal errors
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnknownPlatform, "platform %q is not defined", name)
//	if errors.Is(err, errors.ErrCodeUnknownPlatform) {
//	    // fatal: abort the run
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidConfig  Code = "INVALID_CONFIG"
	ErrCodeInvalidLibrary Code = "INVALID_LIBRARY"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Selection errors
	ErrCodeUnknownPlatform Code = "UNKNOWN_PLATFORM"

	// Collaborator errors
	ErrCodeInstallFailed  Code = "INSTALL_FAILED"
	ErrCodeBuildFailed    Code = "BUILD_FAILED"
	ErrCodeToolFailed     Code = "TOOL_FAILED"
	ErrCodeRuntimeMissing Code = "RUNTIME_MISSING"

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

// IsFatal reports whether err must abort the whole run rather than a single
// (platform, compiler, file) combination.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeUnknownPlatform, ErrCodeInvalidConfig, ErrCodeInternal:
		return true
	}
	return false
}
