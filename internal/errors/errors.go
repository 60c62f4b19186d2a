// Package errors defines the coded errors services return and handlers render.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable part of an error response.
type ErrorCode string

const (
	ErrCodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"

	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"

	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeSessionNotActive ErrorCode = "SESSION_NOT_ACTIVE"

	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Lock timeouts and fan-out outages. The caller may repeat the whole operation.
	ErrCodeTransient ErrorCode = "TRANSIENT"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError carries a code and a client-safe message. The cause is kept for
// logs and errors.Is/As but is never rendered.
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.cause != nil {
		msg += " (cause: " + e.cause.Error() + ")"
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(code ErrorCode, message string, cause error) *AppError {
	return New(code, message).WithCause(cause)
}

func Unauthenticated(message string) *AppError { return New(ErrCodeUnauthenticated, message) }
func Forbidden(message string) *AppError       { return New(ErrCodeForbidden, message) }
func Conflict(message string) *AppError        { return New(ErrCodeConflict, message) }
func ValidationError(message string) *AppError { return New(ErrCodeValidation, message) }
func Internal(message string) *AppError        { return New(ErrCodeInternal, message) }

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, resource+" not found")
}

func SessionNotActive() *AppError {
	return New(ErrCodeSessionNotActive, "Session is not active")
}

func InvalidInput(field, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, field+" is required")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Transient(message string, cause error) *AppError {
	return Wrap(ErrCodeTransient, message, cause)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError finds the outermost AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode treats errors without a code as internal.
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

func IsRetryable(err error) bool {
	return GetCode(err) == ErrCodeTransient
}
