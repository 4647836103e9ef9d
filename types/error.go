package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestrator.
type ErrorCode string

// Registration error codes
const (
	ErrDuplicateID   ErrorCode = "DUPLICATE_ID"
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrUnknownAgent  ErrorCode = "UNKNOWN_AGENT"
)

// Lookup and evaluation error codes
const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrMissingVariable   ErrorCode = "MISSING_VARIABLE"
	ErrInvalidExpression ErrorCode = "INVALID_EXPRESSION"
	// ErrDuplicateWrite is an invariant violation, never a user error.
	ErrDuplicateWrite ErrorCode = "DUPLICATE_WRITE"
)

// Invocation error codes
const (
	ErrAuthentication     ErrorCode = "AUTHENTICATION"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrProviderError      ErrorCode = "PROVIDER_ERROR"
	ErrCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrAllModelsExhausted ErrorCode = "ALL_MODELS_EXHAUSTED"
)

// Workflow error codes
const (
	ErrWorkflowTimeout    ErrorCode = "WORKFLOW_TIMEOUT"
	ErrExecutionCanceled  ErrorCode = "EXECUTION_CANCELED"
	ErrInvalidStep        ErrorCode = "INVALID_STEP"
	ErrOrchestratorClosed ErrorCode = "ORCHESTRATOR_CLOSED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Model     string    `json:"model,omitempty"`
	Cause     error     `json:"-"`
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

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithModel sets the model the failure belongs to.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// AsError finds the outermost *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// NewAuthError reports rejected provider credentials.
func NewAuthError(model, message string) *Error {
	return NewError(ErrAuthentication, message).WithModel(model)
}

// NewRateLimitError reports provider throttling.
func NewRateLimitError(model, message string) *Error {
	return NewError(ErrRateLimited, message).WithModel(model).WithRetryable(true)
}

// NewTimeoutError reports an attempt that exceeded its time bound.
func NewTimeoutError(model, message string) *Error {
	return NewError(ErrTimeout, message).WithModel(model).WithRetryable(true)
}

// NewProviderError reports any other provider-side failure.
func NewProviderError(model, message string) *Error {
	return NewError(ErrProviderError, message).WithModel(model).WithRetryable(true)
}
