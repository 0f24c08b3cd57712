package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Fatal configuration and validation codes. Errors with these codes are
// never retried.
const (
	ErrConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCycleDetected     ErrorCode = "CYCLE_DETECTED"
	ErrUnknownFunction   ErrorCode = "UNKNOWN_FUNCTION"
	ErrMalformedExpr     ErrorCode = "MALFORMED_EXPRESSION"
	ErrDuplicateNode     ErrorCode = "DUPLICATE_NODE"
	ErrDuplicateEdge     ErrorCode = "DUPLICATE_EDGE"
	ErrDanglingEdge      ErrorCode = "DANGLING_EDGE"
	ErrDuplicateCondID   ErrorCode = "DUPLICATE_CONDITION_ID"
	ErrScriptUnsupported ErrorCode = "SCRIPT_CONDITION_UNSUPPORTED"
)

// Runtime codes.
const (
	ErrExecution         ErrorCode = "EXECUTION_ERROR"
	ErrTimeout           ErrorCode = "TIMEOUT"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrNodeNotFound      ErrorCode = "NODE_NOT_FOUND"
	ErrEdgeNotFound      ErrorCode = "EDGE_NOT_FOUND"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrExecutorNotFound  ErrorCode = "EXECUTOR_NOT_FOUND"
)

// Checkpoint and session codes.
const (
	ErrCheckpointNotFound ErrorCode = "CHECKPOINT_NOT_FOUND"
	ErrThreadNotFound     ErrorCode = "THREAD_NOT_FOUND"
	ErrSessionDeleted     ErrorCode = "SESSION_DELETED"
	ErrSessionNotActive   ErrorCode = "SESSION_NOT_ACTIVE"
	ErrThreadLimit        ErrorCode = "THREAD_LIMIT_REACHED"
	ErrForkRejected       ErrorCode = "FORK_REJECTED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	EdgeID    string    `json:"edge_id,omitempty"`
	Retryable bool      `json:"retryable"`
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

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithNode attaches the offending node id.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// WithEdge attaches the offending edge id.
func (e *Error) WithEdge(edgeID string) *Error {
	e.EdgeID = edgeID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsConfiguration reports whether err is a fatal configuration error.
func IsConfiguration(err error) bool {
	switch GetErrorCode(err) {
	case ErrConfiguration, ErrUnknownFunction, ErrMalformedExpr:
		return true
	}
	return false
}

// IsValidation reports whether err is a fatal validation error.
func IsValidation(err error) bool {
	switch GetErrorCode(err) {
	case ErrValidation, ErrCycleDetected, ErrDanglingEdge, ErrDuplicateNode,
		ErrDuplicateEdge, ErrDuplicateCondID:
		return true
	}
	return false
}
