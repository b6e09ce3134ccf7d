package pkg

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures that the workflow knows how to recover from
type ErrorKind string

const (
	ErrSessionInvalid       ErrorKind = "SESSION_INVALID"
	ErrNotFound             ErrorKind = "NOT_FOUND"
	ErrUnsupportedTable     ErrorKind = "UNSUPPORTED_TABLE"
	ErrConfirmationRequired ErrorKind = "CONFIRMATION_REQUIRED"
	ErrValidation           ErrorKind = "VALIDATION"
	ErrUpstreamTimeout      ErrorKind = "UPSTREAM_TIMEOUT"
	ErrUpstreamUnavailable  ErrorKind = "UPSTREAM_UNAVAILABLE"
	ErrInternal             ErrorKind = "INTERNAL"
)

// AppError is a classified error with optional details
type AppError struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// NewSessionInvalidError reports a session that cannot accept turns
func NewSessionInvalidError(sessionID string) *AppError {
	return &AppError{Kind: ErrSessionInvalid, Message: fmt.Sprintf("session '%s' is not active", sessionID)}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{Kind: ErrNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// NewUnsupportedTableError rejects tables outside the capability table
func NewUnsupportedTableError(table string) *AppError {
	return &AppError{Kind: ErrUnsupportedTable, Message: fmt.Sprintf("table '%s' is not supported", table)}
}

// NewConfirmationRequiredError refuses a destructive call without confirmation
func NewConfirmationRequiredError(tool string) *AppError {
	return &AppError{Kind: ErrConfirmationRequired, Message: fmt.Sprintf("'%s' requires confirmation", tool)}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{Kind: ErrValidation, Message: message}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{Kind: ErrInternal, Message: message, Cause: cause}
}

// NewUpstreamError classifies a failed external call as timeout or unavailable
func NewUpstreamError(operation string, err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Kind: ErrUpstreamTimeout, Message: fmt.Sprintf("operation '%s' timed out", operation), Cause: err}
	}
	return &AppError{Kind: ErrUpstreamUnavailable, Message: fmt.Sprintf("operation '%s' failed", operation), Cause: err}
}

// KindOf returns the kind of the first AppError in the chain
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
