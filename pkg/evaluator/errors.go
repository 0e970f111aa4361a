package evaluator

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call
// without contacting the evaluator.
var ErrCircuitOpen = errors.New("evaluator circuit open")

// EvaluationError is returned when a decision could not be obtained from the
// evaluator after all retries.
type EvaluationError struct {
	Policies []string // Policies that were requested
	Attempts int      // Number of attempts made
	Cause    error    // Underlying error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error [attempts=%d]: %v", e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// NewEvaluationError creates a new EvaluationError.
func NewEvaluationError(policies []string, attempts int, cause error) *EvaluationError {
	return &EvaluationError{
		Policies: policies,
		Attempts: attempts,
		Cause:    cause,
	}
}

// PolicyLoadError is returned when the evaluator rejects a policy document
// as syntactically or semantically invalid.
type PolicyLoadError struct {
	PolicyID   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *PolicyLoadError) Error() string {
	return fmt.Sprintf("policy load error [policy_id=%s, status=%d]: %s", e.PolicyID, e.StatusCode, e.Message)
}

// NewPolicyLoadError creates a new PolicyLoadError.
func NewPolicyLoadError(policyID string, statusCode int, message string) *PolicyLoadError {
	return &PolicyLoadError{
		PolicyID:   policyID,
		StatusCode: statusCode,
		Message:    message,
	}
}

// TransportError is returned when the evaluator could not be reached or
// answered with an unexpected status.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int   // Zero when no response was received
	Cause      error // Underlying error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error [%s %s, status=%d]: %v", e.Method, e.Path, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("transport error [%s %s]: %v", e.Method, e.Path, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient.
func (e *TransportError) Retryable() bool {
	return e.StatusCode == 0 || retryableStatus(e.StatusCode)
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// NewTransportError creates a new TransportError.
func NewTransportError(method, path string, statusCode int, cause error) *TransportError {
	return &TransportError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Cause:      cause,
	}
}
