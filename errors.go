package maestro

import (
	"errors"
	"fmt"
)

// Store error codes
const (
	StoreErrCodeNotFound   = "NOT_FOUND"
	StoreErrCodeConnection = "CONNECTION"
	StoreErrCodeQuery      = "QUERY"
	StoreErrCodeInternal   = "INTERNAL"
)

// Provider error codes
const (
	ProviderErrCodeTimeout         = "TIMEOUT"
	ProviderErrCodeInvalidResponse = "INVALID_RESPONSE"
	ProviderErrCodeAPI             = "API_ERROR"
	ProviderErrCodePolicyRejection = "POLICY_REJECTION"
)

// ErrInstanceNotFound is returned by the instance store when no instance
// exists for the requested id
var ErrInstanceNotFound = errors.New("workflow instance not found")

// ErrInvalidNextStep marks the engine failure raised when the decision
// provider names a step that does not exist in the definition
var ErrInvalidNextStep = errors.New("invalid next step")

// StoreError wraps a failure from the instance store. The engine does not
// branch on the code; it exists for diagnostics.
type StoreError struct {
	Code string
	Op   string
	Err  error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s failed [%s]: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("store %s failed [%s]", e.Op, e.Code)
}

// Unwrap returns the underlying cause
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new store error
func NewStoreError(code, op string, err error) *StoreError {
	return &StoreError{Code: code, Op: op, Err: err}
}

// IsStoreError reports whether err is (or wraps) a StoreError or the
// instance-not-found sentinel
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se) || errors.Is(err, ErrInstanceNotFound)
}

// ProviderError wraps a failure from the decision provider. The engine treats
// every code uniformly as a single reportable failure class.
type ProviderError struct {
	Code       string
	Message    string
	StatusCode int    // set for API errors
	Raw        string // raw response body for invalid-response errors
	Err        error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("decision provider [%s] (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("decision provider [%s]: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error
func NewProviderError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

// IsProviderError reports whether err is (or wraps) a ProviderError
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// EngineError is the single error type surfaced by engine operations after an
// instance has been loaded. It always carries the original cause.
type EngineError struct {
	InstanceID string
	Op         string
	Err        error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

// Unwrap returns the underlying cause
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new engine error wrapping cause
func NewEngineError(op, instanceID string, cause error) *EngineError {
	return &EngineError{InstanceID: instanceID, Op: op, Err: cause}
}
