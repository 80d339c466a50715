package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a round-trip failure
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindTransportFailure Kind = "transport_failure"
	KindHTTPError        Kind = "http_error"
	KindInvalidInput     Kind = "invalid_input"
	KindEmptyResult      Kind = "empty_result"
	KindStoreCorruption  Kind = "store_corruption"
)

// AppError represents a structured round-trip error
type AppError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Cause      error  `json:"-"`
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

// Retryable reports whether the user can simply try again.
// Nothing is ever retried automatically.
func (e *AppError) Retryable() bool {
	return e.Kind == KindTransportFailure || e.Kind == KindHTTPError
}

// NewPermissionDenied creates an error for a capability the user has not granted
func NewPermissionDenied(message string, cause error) *AppError {
	return &AppError{Kind: KindPermissionDenied, Message: message, Cause: cause}
}

// NewTransportFailure creates an error for DNS, connection or timeout failures
func NewTransportFailure(message string, cause error) *AppError {
	return &AppError{Kind: KindTransportFailure, Message: message, Cause: cause}
}

// NewHTTPError creates an error for a non-2xx backend response
func NewHTTPError(statusCode int, message string) *AppError {
	return &AppError{Kind: KindHTTPError, Message: message, StatusCode: statusCode}
}

// NewInvalidInput creates an error for an image the backend rejected
func NewInvalidInput(message string) *AppError {
	return &AppError{Kind: KindInvalidInput, Message: message}
}

// NewEmptyResult creates an error for a valid image with nothing extracted
func NewEmptyResult(message string) *AppError {
	return &AppError{Kind: KindEmptyResult, Message: message}
}

// NewStoreCorruption creates an error for unreadable persisted data
func NewStoreCorruption(message string, cause error) *AppError {
	return &AppError{Kind: KindStoreCorruption, Message: message, Cause: cause}
}

// IsKind checks if any error in the chain is an AppError of the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf extracts the kind from an error chain, or "" when there is none
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
