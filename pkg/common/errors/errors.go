package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the fanflow library

var (
	// ErrTimeout indicates that an operation exceeded its per-call deadline
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates that an operation was aborted before it completed,
	// either by a sibling policy decision or by the caller
	ErrCancelled = errors.New("operation cancelled")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrPanicked indicates that an operation panicked while running
	ErrPanicked = errors.New("operation panicked")

	// ErrNoSuccess indicates that no operation in a batch completed successfully
	ErrNoSuccess = errors.New("no operation succeeded")
)

// ValidationError describes a rejected constructor or configuration argument.
// It unwraps to ErrInvalidConfiguration.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError for the given module and field.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint to the error.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// OperationError wraps a failure raised inside a named operation of a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError wrapping cause.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches extra detail to the error message.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsTimeout returns true if the error reports a per-operation timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCancelled returns true if the error reports a cancelled operation
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsConfiguration returns true if the error was raised by argument validation
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
