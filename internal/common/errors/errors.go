package errors

import (
	"fmt"
	"net/http"
)

// Error codes
const (
	// 4xx Client Errors
	CodeInvalidInput        = "INVALID_INPUT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInvalidState        = "INVALID_QUESTION_STATE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeAuthorizationFailed = "AUTHORIZATION_FAILED"

	// 5xx Server Errors
	CodeInternal         = "INTERNAL_ERROR"
	CodeStorageError     = "STORAGE_ERROR"
	CodeInstanceNotReady = "INSTANCE_NOT_READY"
	CodeChainError       = "CHAIN_ERROR"
	CodeChainTimeout     = "CHAIN_TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Error constructors

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func InvalidQuestionState(questionID uint64, message string) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    message,
		StatusCode: http.StatusConflict,
		Details: map[string]any{
			"question_id": questionID,
		},
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func StorageError(err error) *AppError {
	return &AppError{
		Code:       CodeStorageError,
		Message:    "Storage error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

func AuthorizationFailed(err error) *AppError {
	return &AppError{
		Code:       CodeAuthorizationFailed,
		Message:    "Decryption authorization failed or was declined",
		StatusCode: http.StatusForbidden,
		Err:        err,
	}
}

func InstanceNotReady(err error) *AppError {
	return &AppError{
		Code:       CodeInstanceNotReady,
		Message:    "Encryption instance is not ready",
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func ChainError(message string) *AppError {
	return &AppError{
		Code:       CodeChainError,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

func ChainTimeout(err error) *AppError {
	return &AppError{
		Code:       CodeChainTimeout,
		Message:    "Timed out waiting for transaction",
		StatusCode: http.StatusGatewayTimeout,
		Err:        err,
	}
}
