// Package errors defines the typed error used across nbuild and helpers to
// classify it.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeProcess    ErrorType = "process"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeCommandRejected  = "ERR_COMMAND_REJECTED"
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodeMissingEnv       = "ERR_MISSING_ENV"
	ErrCodeDotenv           = "ERR_DOTENV"
	ErrCodeBundleFailed     = "ERR_BUNDLE_FAILED"
	ErrCodeReplaceFailed    = "ERR_REPLACE_FAILED"
	ErrCodeCleanFailed      = "ERR_CLEAN_FAILED"
	ErrCodeServiceWorker    = "ERR_SERVICE_WORKER"
	ErrCodeLiveReload       = "ERR_LIVERELOAD"
	ErrCodeCommandFailed    = "ERR_COMMAND_FAILED"
	ErrCodeSpawnFailed      = "ERR_SPAWN_FAILED"
	ErrCodeTerminateFailed  = "ERR_TERMINATE_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
)

// NBuildError is a structured error type with context.
type NBuildError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Step        string
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *NBuildError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Step != "" {
		parts = append(parts, "step:"+e.Step)
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *NBuildError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an NBuildError of the same type and code.
func (e *NBuildError) Is(target error) bool {
	var t *NBuildError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *NBuildError) WithContext(key string, value interface{}) *NBuildError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithStep records the pipeline step the error came from.
func (e *NBuildError) WithStep(step string) *NBuildError {
	e.Step = step

	return e
}

// WithFile records the file the error concerns.
func (e *NBuildError) WithFile(path string) *NBuildError {
	e.FilePath = path

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *NBuildError {
	return &NBuildError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *NBuildError {
	return &NBuildError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewBuildError creates a build error. Build errors are recoverable: watch mode
// keeps running and retries on the next change.
func NewBuildError(code, message string, cause error) *NBuildError {
	return &NBuildError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *NBuildError {
	return &NBuildError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewProcessError creates an error about a child process.
func NewProcessError(code, message string, cause error) *NBuildError {
	return &NBuildError{
		Type:    ErrorTypeProcess,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *NBuildError {
	return &NBuildError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ne *NBuildError
	if errors.As(err, &ne) {
		return ne.Recoverable
	}

	return false
}

// IsType reports whether err is an NBuildError of the given type.
func IsType(err error, t ErrorType) bool {
	var ne *NBuildError
	if errors.As(err, &ne) {
		return ne.Type == t
	}

	return false
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return IsType(err, ErrorTypeBuild)
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	return IsType(err, ErrorTypeConfig)
}
