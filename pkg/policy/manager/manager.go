package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Manager reconciles a policy directory with a Target.
type Manager struct {
	config  Config
	loader  *Loader
	target  Target
	logger  *slog.Logger
	now     func() time.Time
	watcher *Watcher

	// syncMu serializes Sync; mu guards pushed.
	syncMu sync.Mutex
	mu     sync.RWMutex
	pushed map[string]Entry
}

// New creates a Manager. Nothing is read until Sync or Start.
func New(config *Config, target Target) (*Manager, error) {
	if config == nil || config.Directory == "" {
		return nil, errors.New("policy directory is required")
	}
	if target == nil {
		return nil, errors.New("policy target is required")
	}

	cfg := *config
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Manager{
		config: cfg,
		loader: NewLoader(&cfg),
		target: target,
		logger: slog.Default().With("component", "policy.manager"),
		now:    time.Now,
		pushed: make(map[string]Entry),
	}, nil
}

// Start runs an initial Sync and, when watching is enabled, keeps syncing
// on file changes until ctx is done or Close is called. Rejected documents
// in the initial sync are logged, not returned; an unreadable directory is
// an error.
func (m *Manager) Start(ctx context.Context) error {
	result, err := m.Sync(ctx)
	if err != nil {
		return err
	}
	m.logResult(result)

	if !m.config.Watch {
		return nil
	}

	w, err := NewWatcher(m.config.Directory, m.loader, m.config.Debounce)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.watcher = w
	m.mu.Unlock()

	go w.Watch(ctx, func() {
		result, err := m.Sync(ctx)
		if err != nil {
			m.logger.Error("policy sync failed", "error", err)
			return
		}
		m.logResult(result)
	})
	return nil
}

// Close stops watching.
func (m *Manager) Close() error {
	m.mu.RLock()
	w := m.watcher
	m.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// Sync loads new and changed documents and removes documents that are no
// longer in the directory. A document the target rejects stays at its
// previous version and is retried on the next Sync.
func (m *Manager) Sync(ctx context.Context) (*SyncResult, error) {
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	docs, loadErrs, err := m.loader.LoadDirectory(m.config.Directory)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Errors: loadErrs}
	present := make(map[string]bool, len(docs))

	for _, doc := range docs {
		present[doc.ID] = true

		m.mu.RLock()
		prev, known := m.pushed[doc.ID]
		m.mu.RUnlock()
		if known && prev.Version == doc.Version {
			result.Unchanged++
			continue
		}

		if err := m.target.LoadPolicy(ctx, doc.PolicyDocument); err != nil {
			result.Errors = append(result.Errors, &SyncError{PolicyID: doc.ID, Operation: "load", Cause: err})
			continue
		}
		m.mu.Lock()
		m.pushed[doc.ID] = Entry{ID: doc.ID, Version: doc.Version, Path: doc.Path, LoadedAt: m.now().UTC()}
		m.mu.Unlock()
		result.Loaded = append(result.Loaded, doc.ID)
	}

	for _, id := range m.stale(present) {
		if err := m.target.RemovePolicy(ctx, id); err != nil {
			result.Errors = append(result.Errors, &SyncError{PolicyID: id, Operation: "remove", Cause: err})
			continue
		}
		m.mu.Lock()
		delete(m.pushed, id)
		m.mu.Unlock()
		result.Removed = append(result.Removed, id)
	}

	return result, nil
}

func (m *Manager) stale(present map[string]bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id := range m.pushed {
		if !present[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Entries returns the documents currently pushed, sorted by id.
func (m *Manager) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.pushed))
	for _, e := range m.pushed {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) logResult(result *SyncResult) {
	for _, err := range result.Errors {
		m.logger.Warn("policy document skipped", "error", err)
	}
	if len(result.Loaded) > 0 || len(result.Removed) > 0 {
		m.logger.Info("policies synchronized",
			"loaded", result.Loaded,
			"removed", result.Removed,
			"unchanged", result.Unchanged,
		)
	}
}

// Err joins the per-document errors of a result.
func (r *SyncResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("%d policy documents failed: %w", len(r.Errors), errors.Join(r.Errors...))
}
