package manager

import (
	"context"
	"time"

	"mercator-hq/arbiter/pkg/evaluator"
)

// ManifestFile is the optional manifest name inside the policy directory.
const ManifestFile = "manifest.yaml"

// DefaultExtensions are the file types treated as policy documents.
var DefaultExtensions = []string{".rego", ".json", ".yaml", ".yml"}

// Target receives policy documents. *engine.Engine implements it, which
// records each change in the operations audit and clears the decision
// cache.
type Target interface {
	LoadPolicy(ctx context.Context, doc evaluator.PolicyDocument) error
	RemovePolicy(ctx context.Context, policyID string) error
}

// Config configures a Manager.
type Config struct {
	// Directory holds the policy documents. Required.
	Directory string

	// Watch reloads on file changes after Start.
	Watch bool

	// Debounce coalesces bursts of file events.
	Debounce time.Duration

	// MaxFileSize rejects larger documents. Zero uses DefaultMaxFileSize.
	MaxFileSize int64

	// Extensions overrides DefaultExtensions.
	Extensions []string
}

// DefaultMaxFileSize bounds a single policy document.
const DefaultMaxFileSize = 4 << 20

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Manifest overrides ids and versions for files in the directory.
type Manifest struct {
	Policies []ManifestEntry `yaml:"policies"`
}

// ManifestEntry describes one file.
type ManifestEntry struct {
	File    string `yaml:"file"`
	ID      string `yaml:"id"`
	Version string `yaml:"version"`
}

// Entry is a document the manager has pushed to the target.
type Entry struct {
	ID       string    `json:"id"`
	Version  string    `json:"version"`
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
}

// SyncResult summarizes one reconciliation.
type SyncResult struct {
	Loaded    []string `json:"loaded"`
	Removed   []string `json:"removed"`
	Unchanged int      `json:"unchanged"`
	Errors    []error  `json:"-"`
}
