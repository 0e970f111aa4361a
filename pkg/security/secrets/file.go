package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider loads secrets from individual files in a directory, one
// secret per file as mounted by Kubernetes or systemd credentials. Files
// must be mode 0600 or 0400.
//
// With Watch set, any change in the directory drops the provider cache so
// a rotated audit master key is picked up on the next read.
type FileProvider struct {
	BasePath string
	Watch    bool

	mu      sync.RWMutex
	cache   map[string]string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// NewFileProvider creates a new file-based secret provider rooted at basePath.
func NewFileProvider(basePath string, watch bool) (*FileProvider, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat base path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base path is not a directory: %s", basePath)
	}

	p := &FileProvider{
		BasePath: basePath,
		Watch:    watch,
		cache:    make(map[string]string),
		stopCh:   make(chan struct{}),
		logger:   slog.Default().With("component", "secrets.file"),
	}

	if watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Add(basePath); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch directory: %w", err)
		}
		p.watcher = watcher
		go p.watchLoop()
	}

	p.logger.Info("file secret provider started", "path", basePath, "watch", watch)
	return p, nil
}

// GetSecret reads the file named after the secret. Surrounding whitespace
// is trimmed.
func (p *FileProvider) GetSecret(ctx context.Context, name string) (string, error) {
	p.mu.RLock()
	if value, ok := p.cache[name]; ok {
		p.mu.RUnlock()
		return value, nil
	}
	p.mu.RUnlock()

	path, err := p.resolve(name)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret path is not a regular file: %s", name)
	}

	mode := info.Mode().Perm()
	if mode != 0600 && mode != 0400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
	}

	// #nosec G304 - path is confined to BasePath by resolve
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value := strings.TrimSpace(string(data))

	p.mu.Lock()
	p.cache[name] = value
	p.mu.Unlock()

	return value, nil
}

// resolve joins name onto BasePath and rejects anything escaping it.
func (p *FileProvider) resolve(name string) (string, error) {
	absBase, err := filepath.Abs(p.BasePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(p.BasePath, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid secret path: directory traversal detected")
	}
	return absPath, nil
}

// ListSecrets returns the names of regular files in the base directory.
func (p *FileProvider) ListSecrets(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets directory: %w", err)
	}

	var secrets []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			secrets = append(secrets, entry.Name())
		}
	}
	return secrets, nil
}

// Provider returns the provider name.
func (p *FileProvider) Provider() string {
	return "file"
}

// Supports reports whether a regular file with that name exists.
func (p *FileProvider) Supports(name string) bool {
	path, err := p.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Refresh clears the cache, forcing secrets to be re-read from files.
func (p *FileProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.cache = make(map[string]string)
	p.mu.Unlock()
	return nil
}

// Close stops the file watcher. Safe to call more than once.
func (p *FileProvider) Close() error {
	var err error
	p.once.Do(func() {
		close(p.stopCh)
		if p.watcher != nil {
			err = p.watcher.Close()
		}
	})
	return err
}

func (p *FileProvider) watchLoop() {
	const changes = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&changes == 0 {
				continue
			}
			p.logger.Debug("secret file changed",
				"file", filepath.Base(event.Name),
				"op", event.Op.String(),
			)
			_ = p.Refresh(context.Background())

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("file watcher error", "error", err)

		case <-p.stopCh:
			return
		}
	}
}
