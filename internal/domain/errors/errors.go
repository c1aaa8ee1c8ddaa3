package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeBusiness     ErrorType = "business"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeToken        ErrorType = "token"
	ErrorTypeStorage      ErrorType = "storage"
	ErrorTypePrivacy      ErrorType = "privacy"
)

// Well-known error codes surfaced by the security pipeline.
const (
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeExpiredToken         = "EXPIRED_TOKEN"
	CodeRevokedToken         = "REVOKED_TOKEN"
	CodeMissingClaims        = "MISSING_CLAIMS"
	CodeInvalidExpiry        = "INVALID_EXPIRY"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeStorageWriteFailed   = "STORAGE_WRITE_FAILED"
	CodeStorageReadFailed    = "STORAGE_READ_FAILED"
	CodeUnauthorizedReversal = "UNAUTHORIZED_REVERSAL"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
	}
}

// NewTokenError builds a token-lifecycle error carrying one of the
// Code* token constants. Token errors are always recoverable by the
// caller; they never abort the request pipeline.
func NewTokenError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeToken,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

// NewStorageWriteError marks a durable-write failure. Failed writes are
// retried on the next flush, so the error is retryable and is never
// surfaced to the logging caller.
func NewStorageWriteError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Code:       CodeStorageWriteFailed,
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// NewStorageReadError marks a query failure the caller cannot proceed
// without.
func NewStorageReadError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Code:       CodeStorageReadFailed,
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

// NewUnauthorizedReversalError is returned when a pseudonym reversal is
// attempted without positive authorization for the stated purpose.
func NewUnauthorizedReversalError(purpose string) *AppError {
	return &AppError{
		Type:       ErrorTypePrivacy,
		Code:       CodeUnauthorizedReversal,
		Message:    fmt.Sprintf("reversal not authorized for purpose %q", purpose),
		Retryable:  false,
		StatusCode: 403,
	}
}

// Helper functions for error checking
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
