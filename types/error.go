package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Provider error codes
const (
	ErrProviderTransient    ErrorCode = "PROVIDER_TRANSIENT"
	ErrProviderPermanent    ErrorCode = "PROVIDER_PERMANENT"
	ErrProviderAllExhausted ErrorCode = "PROVIDER_ALL_EXHAUSTED"
	ErrProviderNotFound     ErrorCode = "PROVIDER_NOT_FOUND"
	ErrProviderDuplicate    ErrorCode = "PROVIDER_DUPLICATE"
)

// Workflow error codes
const (
	ErrStageFailed       ErrorCode = "STAGE_FAILED"
	ErrStageDegraded     ErrorCode = "STAGE_DEGRADED"
	ErrWorkflowNotFound  ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrWorkflowCancelled ErrorCode = "WORKFLOW_CANCELLED"
	ErrWorkflowTerminal  ErrorCode = "WORKFLOW_TERMINAL"
	ErrEngineClosed      ErrorCode = "ENGINE_CLOSED"
)

// Render error codes
const (
	ErrRenderJobFailed      ErrorCode = "RENDER_JOB_FAILED"
	ErrRenderJobNotFound    ErrorCode = "RENDER_JOB_NOT_FOUND"
	ErrRenderQueueSaturated ErrorCode = "RENDER_QUEUE_SATURATED"
	ErrRenderQueueClosed    ErrorCode = "RENDER_QUEUE_CLOSED"
)

// Infrastructure error codes
const (
	ErrValidation  ErrorCode = "VALIDATION"
	ErrInternal    ErrorCode = "INTERNAL"
	ErrTimeout     ErrorCode = "TIMEOUT"
	ErrStoreClosed ErrorCode = "STORE_CLOSED"
	ErrNotFound    ErrorCode = "NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Stage     string    `json:"stage,omitempty"`
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

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithStage sets the pipeline stage name.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// NewTransientError creates a retryable provider error.
func NewTransientError(provider, message string) *Error {
	return &Error{Code: ErrProviderTransient, Message: message, Provider: provider, Retryable: true}
}

// NewPermanentError creates a non-retryable provider error.
func NewPermanentError(provider, message string) *Error {
	return &Error{Code: ErrProviderPermanent, Message: message, Provider: provider}
}

// AsError extracts a *Error from err's chain, or nil if none is present.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsRetryable checks if an error is retryable.
// An explicit *Error classification in the chain wins; bare context
// cancellation/deadline errors are not retryable. Errors that carry neither
// are treated as retryable, so misclassified failures fail toward a bounded
// retry rather than an immediate give-up.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e := AsError(err); e != nil {
		return e.Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e := AsError(err); e != nil {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
