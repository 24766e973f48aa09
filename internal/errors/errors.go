package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Pairing (sent to peers as the reason of PAIR_FAILED / SESSION_INVALID)
	ErrCodeInvalidCode   ErrorCode = "INVALID_CODE"
	ErrCodeHostNotFound  ErrorCode = "HOST_NOT_FOUND"
	ErrCodeTokenNotFound ErrorCode = "TOKEN_NOT_FOUND"
	ErrCodeTokenExpired  ErrorCode = "TOKEN_EXPIRED"

	// Silently dropped traffic
	ErrCodeProtocol    ErrorCode = "PROTOCOL_ERROR"
	ErrCodeAuth        ErrorCode = "AUTH_ERROR"
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Transport
	ErrCodeTransport    ErrorCode = "TRANSPORT_ERROR"
	ErrCodeBackpressure ErrorCode = "BACKPRESSURE"

	// HTTP surfaces
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func InvalidCode() *AppError {
	return New(ErrCodeInvalidCode, "Invalid or expired pair code")
}

func HostNotFound() *AppError {
	return New(ErrCodeHostNotFound, "Host session not found")
}

func TokenNotFound() *AppError {
	return New(ErrCodeTokenNotFound, "Trust token not found")
}

func TokenExpired() *AppError {
	return New(ErrCodeTokenExpired, "Trust token has expired")
}

func Protocol(reason string) *AppError {
	return New(ErrCodeProtocol, reason)
}

func Auth(reason string) *AppError {
	return New(ErrCodeAuth, reason)
}

func RateLimited() *AppError {
	return New(ErrCodeRateLimited, "Rate limit exceeded")
}

func Transport(cause error) *AppError {
	return Wrap(ErrCodeTransport, "Transport failure", cause)
}

func Backpressure() *AppError {
	return New(ErrCodeBackpressure, "Outbound queue full")
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
