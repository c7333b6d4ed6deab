// Package brew structured error types for better error handling
package brew

import (
	"fmt"
)

// ErrorType represents categories of errors
type ErrorType int

const (
	// Configuration errors (bad mode, unknown group, invalid device)
	ErrTypeConfig ErrorType = iota
	// Memory errors
	ErrTypeMemory
	// Invalid argument errors
	ErrTypeInvalidArg
	// Execution errors
	ErrTypeExecution
	// Native resource exhaustion (engine handles, streams)
	ErrTypeResource
	// Device errors
	ErrTypeDevice
	// Determinism misuse (never fatal, surfaced as warnings)
	ErrTypeDeterminism
)

// BrewError represents a structured error with context
type BrewError struct {
	Type    ErrorType
	Op      string      // Operation that failed
	Message string      // Human-readable message
	Err     error       // Underlying error if any
	Context interface{} // Additional context
}

// Error implements the error interface
func (e *BrewError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("brew %s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("brew %s error in %s: %s",
		e.Type.String(), e.Op, e.Message)
}

// Unwrap allows error chain inspection
func (e *BrewError) Unwrap() error {
	return e.Err
}

// String returns the error type as a string
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConfig:
		return "Config"
	case ErrTypeMemory:
		return "Memory"
	case ErrTypeInvalidArg:
		return "InvalidArgument"
	case ErrTypeExecution:
		return "Execution"
	case ErrTypeResource:
		return "Resource"
	case ErrTypeDevice:
		return "Device"
	case ErrTypeDeterminism:
		return "Determinism"
	default:
		return "Unknown"
	}
}

// FatalError wraps a BrewError whose condition leaves the execution state
// unusable. It is delivered by panic from the accessor that hit it: a bad
// mode value, an unknown lane group, a device that does not exist, or a
// native engine that ran out of handles. Recovering and continuing past one
// of these is not supported.
type FatalError struct {
	*BrewError
}

// fatalf logs the condition and panics with a *FatalError.
func fatalf(typ ErrorType, op, format string, args ...interface{}) {
	e := &BrewError{Type: typ, Op: op, Message: fmt.Sprintf(format, args...)}
	logger().Error(e.Message, "type", typ.String(), "op", op)
	panic(&FatalError{e})
}

// Common error constructors

// NewConfigError creates a configuration error
func NewConfigError(op string, message string) error {
	return &BrewError{
		Type:    ErrTypeConfig,
		Op:      op,
		Message: message,
	}
}

// NewMemoryError creates a memory-related error
func NewMemoryError(op string, message string, err error) error {
	return &BrewError{
		Type:    ErrTypeMemory,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewInvalidArgError creates an invalid argument error
func NewInvalidArgError(op string, message string) error {
	return &BrewError{
		Type:    ErrTypeInvalidArg,
		Op:      op,
		Message: message,
	}
}

// NewResourceError creates a resource exhaustion error
func NewResourceError(op string, message string, context interface{}) error {
	return &BrewError{
		Type:    ErrTypeResource,
		Op:      op,
		Message: message,
		Context: context,
	}
}

// Common pre-defined errors

var (
	// ErrOutOfMemory indicates memory allocation failure
	ErrOutOfMemory = NewMemoryError("Malloc", "out of memory", nil)

	// ErrInvalidSize indicates invalid size parameter
	ErrInvalidSize = NewInvalidArgError("Malloc", "size must be positive")

	// ErrNullPointer indicates null pointer access
	ErrNullPointer = NewInvalidArgError("Memory", "null pointer")

	// ErrDoubleFree indicates double free attempt
	ErrDoubleFree = NewMemoryError("Free", "double free detected", nil)

	// ErrInvalidDevice indicates invalid device ID
	ErrInvalidDevice = NewInvalidArgError("SetDevice", "invalid device ID")
)

// IsConfigError checks if an error is a configuration error
func IsConfigError(err error) bool {
	if e, ok := err.(*BrewError); ok {
		return e.Type == ErrTypeConfig
	}
	return false
}

// IsMemoryError checks if an error is a memory error
func IsMemoryError(err error) bool {
	if e, ok := err.(*BrewError); ok {
		return e.Type == ErrTypeMemory
	}
	return false
}

// IsInvalidArgError checks if an error is an invalid argument error
func IsInvalidArgError(err error) bool {
	if e, ok := err.(*BrewError); ok {
		return e.Type == ErrTypeInvalidArg
	}
	return false
}

// IsResourceError checks if an error is a resource exhaustion error
func IsResourceError(err error) bool {
	if e, ok := err.(*BrewError); ok {
		return e.Type == ErrTypeResource
	}
	return false
}
