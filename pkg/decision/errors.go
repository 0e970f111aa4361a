package decision

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is returned when an intent is malformed. It is raised
// before any pre-check, cache lookup or evaluator call takes place.
type ValidationError struct {
	Field   string // Dotted path of the offending field
	Message string // Human-readable description
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error [field=%s]: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ValidationErrors aggregates every problem found in one intent.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// As lets errors.As find the first ValidationError in the set.
func (v ValidationErrors) As(target any) bool {
	if len(v) == 0 {
		return false
	}
	if t, ok := target.(**ValidationError); ok {
		*t = v[0]
		return true
	}
	return false
}

// IsValidationError reports whether err is, or wraps, a validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
