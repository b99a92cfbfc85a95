// Package errors defines the structured error taxonomy shared by the build
// invoker, the watch workers and the HTTP router.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeSpawn      ErrorType = "spawn"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeSpawnFailed       = "ERR_SPAWN_FAILED"
	ErrCodeBuildFailed       = "ERR_BUILD_FAILED"
	ErrCodeBuildTimeout      = "ERR_BUILD_TIMEOUT"
	ErrCodeArtifactStat      = "ERR_ARTIFACT_STAT"
	ErrCodeArtifactCopy      = "ERR_ARTIFACT_COPY"
	ErrCodeSourceStat        = "ERR_SOURCE_STAT"
	ErrCodeFileRead          = "ERR_FILE_READ"
	ErrCodeInvalidIdentifier = "ERR_INVALID_IDENTIFIER"
	ErrCodeDuplicateSource   = "ERR_DUPLICATE_SOURCE"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// Error is a structured error type with context.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Source  string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Source != "" {
		parts = append(parts, "source:"+e.Source)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithSource attaches the source identifier the error relates to.
func (e *Error) WithSource(source string) *Error {
	e.Source = source

	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// NewSpawnError creates an error for an external command that could not be started.
func NewSpawnError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeSpawn,
		Code:    ErrCodeSpawnFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeBuild,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeConfigInvalid,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// TypeOf returns the ErrorType of err, or the empty string for foreign errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}

	return ""
}

// IsSpawnError reports whether err means the build command never started.
func IsSpawnError(err error) bool {
	return TypeOf(err) == ErrorTypeSpawn
}

// IsIOError checks if an error is filesystem-related.
func IsIOError(err error) bool {
	return TypeOf(err) == ErrorTypeIO
}

// IsValidationError checks if an error is a validation failure.
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsConfigError checks if an error is a configuration failure.
func IsConfigError(err error) bool {
	return TypeOf(err) == ErrorTypeConfig
}

// ErrInvalidIdentifier creates an identifier validation error.
func ErrInvalidIdentifier(id, reason string) *Error {
	return NewValidationError(
		ErrCodeInvalidIdentifier,
		fmt.Sprintf("invalid source identifier %q: %s", id, reason),
	)
}

// ErrDuplicateSource creates an error for two watched paths sharing one identifier.
func ErrDuplicateSource(id, first, second string) *Error {
	return NewValidationError(
		ErrCodeDuplicateSource,
		fmt.Sprintf("sources %s and %s share identifier %q", first, second, id),
	).WithSource(id)
}
