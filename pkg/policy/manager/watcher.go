package manager

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the policy directory and calls onChange once per burst
// of relevant events.
type Watcher struct {
	dir      string
	loader   *Loader
	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher on dir. Watch must be called to start it.
func NewWatcher(dir string, loader *Loader, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	return &Watcher{
		dir:      dir,
		loader:   loader,
		watcher:  w,
		debounce: NewDebouncer(debounce),
		logger:   slog.Default().With("component", "policy.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks until ctx is done or Stop is called.
func (w *Watcher) Watch(ctx context.Context, onChange func()) {
	defer close(w.doneCh)

	w.logger.Info("watching policy directory", "directory", w.dir)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("policy file event", "path", event.Name, "op", event.Op.String())
			w.debounce.Trigger(onChange)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

// Stop ends Watch, drops pending callbacks and releases the watcher. It is
// safe to call more than once and before Watch.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debounce.Stop()
		err = w.watcher.Close()
	})
	return err
}

// Done is closed when Watch returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if filepath.Base(event.Name) == ManifestFile {
		return true
	}
	return w.loader.IsPolicyFile(event.Name)
}

// Debouncer runs the latest callback once no trigger has arrived for the
// interval.
type Debouncer struct {
	interval time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopped  bool
}

// NewDebouncer creates a Debouncer.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Trigger schedules callback, replacing any pending one.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cb := d.callback
	d.callback = nil
	stopped := d.stopped
	d.mu.Unlock()

	if cb != nil && !stopped {
		cb()
	}
}

// Stop cancels the pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
