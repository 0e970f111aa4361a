package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a log id does not exist.
	ErrNotFound = errors.New("decision log not found")

	// ErrOutcomeAlreadySet is returned when an outcome is attached twice.
	ErrOutcomeAlreadySet = errors.New("outcome already recorded")
)

// PersistenceError is returned when a decision log could not be written or
// read. The evaluation path surfaces it to callers; logging failures are
// never swallowed.
type PersistenceError struct {
	Backend   string // Storage backend ("sqlite", "postgres", "memory")
	Operation string // Operation that failed ("store", "query", "purge", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(backend, operation string, cause error) *PersistenceError {
	return &PersistenceError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// Integrity violation reasons.
const (
	ViolationHashMismatch = "hash mismatch"
	ViolationSealedField  = "sealed field failed authentication"
)

// IntegrityViolation is returned when a stored log's hash does not match
// its recomputed value, or when a sealed field fails authenticated
// decryption. It is fatal for the read that found it.
type IntegrityViolation struct {
	LogID  string
	Reason string // ViolationHashMismatch or ViolationSealedField
	Field  string // Sealed field name, for ViolationSealedField
}

// Error implements the error interface.
func (e *IntegrityViolation) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("integrity violation [log_id=%s field=%s]: %s", e.LogID, e.Field, e.Reason)
	}
	return fmt.Sprintf("integrity violation [log_id=%s]: %s", e.LogID, e.Reason)
}

// NewIntegrityViolation creates an IntegrityViolation for a hash mismatch.
func NewIntegrityViolation(logID string) *IntegrityViolation {
	return &IntegrityViolation{LogID: logID, Reason: ViolationHashMismatch}
}

// NewSealedFieldViolation creates an IntegrityViolation for a sealed field
// that could not be authenticated.
func NewSealedFieldViolation(logID, field string) *IntegrityViolation {
	return &IntegrityViolation{LogID: logID, Reason: ViolationSealedField, Field: field}
}

// RetentionError represents a failure while purging a retention tier.
type RetentionError struct {
	RetentionYears int   // Tier being purged
	Cause          error // Underlying error
}

// Error implements the error interface.
func (e *RetentionError) Error() string {
	return fmt.Sprintf("retention error [retention_years=%d]: %v", e.RetentionYears, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RetentionError) Unwrap() error {
	return e.Cause
}

// NewRetentionError creates a new RetentionError.
func NewRetentionError(retentionYears int, cause error) *RetentionError {
	return &RetentionError{
		RetentionYears: retentionYears,
		Cause:          cause,
	}
}

// ExportError represents an error during log export.
type ExportError struct {
	Format   string // Export format ("json", "csv")
	LogCount int    // Number of logs being exported
	Cause    error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, log_count=%d]: %v", e.Format, e.LogCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, logCount int, cause error) *ExportError {
	return &ExportError{
		Format:   format,
		LogCount: logCount,
		Cause:    cause,
	}
}
