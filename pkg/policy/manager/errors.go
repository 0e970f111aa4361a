package manager

import "fmt"

// LoadError is returned when a policy file cannot be read or is rejected.
type LoadError struct {
	// FilePath is the file that failed to load.
	FilePath string

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load policy file %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load policy file %q: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ManifestError is returned for an unreadable or inconsistent manifest.
type ManifestError struct {
	FilePath string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ManifestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid policy manifest %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid policy manifest %q: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ManifestError) Unwrap() error {
	return e.Cause
}

// SyncError reports a document the evaluator refused during Sync.
type SyncError struct {
	PolicyID  string
	Operation string // "load" or "remove"
	Cause     error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("policy %s %q failed: %v", e.Operation, e.PolicyID, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}
