package errors

import (
	"errors"
	"fmt"
)

// Error codes used across the delivery pipeline
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInternal               = "INTERNAL_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeCompanyNotFound        = "COMPANY_NOT_FOUND"
	CodeProviderNotConfigured  = "PROVIDER_NOT_CONFIGURED"
	CodeCredentialsInvalid     = "CREDENTIALS_INVALID"
	CodeUnsupportedProvider    = "UNSUPPORTED_PROVIDER"
	CodeDeliveryFailed         = "DELIVERY_FAILED"
	CodeTenantConnectionFailed = "TENANT_CONNECTION_FAILED"
	CodeStorageDeleteFailed    = "STORAGE_DELETE_FAILED"
)

// AppError represents an application error
type AppError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:      CodeInternal,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError creates an error for a static tenant misconfiguration.
// Retrying cannot fix these.
func NewConfigurationError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewDeliveryError creates a retryable provider-side failure
func NewDeliveryError(message string, err error) *AppError {
	return &AppError{
		Code:      CodeDeliveryFailed,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewConnectionError creates a retryable tenant database connection failure
func NewConnectionError(message string, err error) *AppError {
	return &AppError{
		Code:      CodeTenantConnectionFailed,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable reports whether err may succeed on a later attempt.
// Errors that are not AppErrors are assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return true
}

// CodeOf returns the AppError code carried by err, or CodeInternal
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given AppError code
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
