package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the hub.
type ErrorCode string

// Routing error codes
const (
	ErrToolNotFound          ErrorCode = "TOOL_NOT_FOUND"
	ErrCapabilityTimeout     ErrorCode = "CAPABILITY_TIMEOUT"
	ErrCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
	ErrQueueExhausted        ErrorCode = "QUEUE_EXHAUSTED"
	ErrReplayExceeded        ErrorCode = "REPLAY_EXCEEDED_ATTEMPTS"
)

// Handoff error codes
const (
	ErrInvalidHandoff  ErrorCode = "INVALID_HANDOFF"
	ErrAgentNotFound   ErrorCode = "AGENT_NOT_FOUND"
	ErrSessionMismatch ErrorCode = "SESSION_MISMATCH"
)

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Tool       string    `json:"tool,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithTool sets the tool name the error relates to.
func (e *Error) WithTool(tool string) *Error {
	e.Tool = tool
	return e
}

// IsRetryable checks if an error is retryable. Wrapped taxonomy errors are
// unwrapped first.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient reports whether the error is a connectivity-class failure that
// the health monitor should count and the degraded queue may absorb.
// Structural errors (unknown tool, invalid handoff) are never transient.
func IsTransient(err error) bool {
	switch GetErrorCode(err) {
	case ErrCapabilityTimeout, ErrCapabilityUnavailable:
		return true
	}
	return false
}
