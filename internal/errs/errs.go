// Package errs defines the structured error type shared across casefolio.
// Errors carry a category, a stable machine-readable code, and optional
// context, so transport layers can map them to responses without string
// matching.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Type categorizes an error.
type Type string

const (
	TypeValidation Type = "validation"
	TypeTemplate   Type = "template"
	TypeConflict   Type = "conflict"
	TypeStorage    Type = "storage"
	TypeConfig     Type = "config"
	TypeInternal   Type = "internal"
)

// Error is the structured error used across packages.
type Error struct {
	Type        Type
	Code        string
	Message     string
	Cause       error
	Context     map[string]any
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by type and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a validation error. Validation errors are
// recoverable; the caller supplied bad input and can try again.
func NewValidationError(code, message string) *Error {
	return &Error{
		Type:        TypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewTemplateError creates a template processing error.
func NewTemplateError(code, message string, cause error) *Error {
	return &Error{
		Type:        TypeTemplate,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConflictError creates a concurrent-edit conflict error. Conflicts are
// recoverable through resolution.
func NewConflictError(code, message string) *Error {
	return &Error{
		Type:        TypeConflict,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewStorageError creates a persistence error.
func NewStorageError(code, message string, cause error) *Error {
	return &Error{
		Type:    TypeStorage,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *Error {
	return &Error{
		Type:    TypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsType reports whether err (or anything it wraps) is a structured error of
// the given type.
func IsType(err error, t Type) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsRecoverable reports whether err is a structured error the caller can
// recover from by retrying with different input.
func IsRecoverable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Recoverable
}
