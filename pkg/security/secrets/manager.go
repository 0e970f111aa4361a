package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"mercator-hq/arbiter/pkg/config"
)

// secretRefRegex matches ${secret:name} patterns in configuration values.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager chains secret providers with priority-based fallback and caches
// resolved values.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
	logger    *slog.Logger
}

// NewManager creates a manager over providers, tried in the given order.
func NewManager(providers []SecretProvider, cacheConfig CacheConfig) *Manager {
	return &Manager{
		providers: providers,
		cache:     NewCache(cacheConfig),
		logger:    slog.Default().With("component", "secrets"),
	}
}

// NewManagerFromConfig builds the providers listed in cfg. Disabled
// providers are skipped. With no enabled providers an environment provider
// using the default prefix is installed.
func NewManagerFromConfig(cfg config.SecretsConfig) (*Manager, error) {
	var providers []SecretProvider
	for i, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		switch pc.Type {
		case "env":
			prefix := pc.Prefix
			if prefix == "" {
				prefix = config.DefaultSecretsEnvPrefix
			}
			providers = append(providers, NewEnvProvider(prefix))
		case "file":
			fp, err := NewFileProvider(pc.Path, pc.Watch)
			if err != nil {
				closeProviders(providers)
				return nil, fmt.Errorf("secrets.providers[%d]: %w", i, err)
			}
			providers = append(providers, fp)
		default:
			closeProviders(providers)
			return nil, fmt.Errorf("secrets.providers[%d]: unknown provider type %q", i, pc.Type)
		}
	}
	if len(providers) == 0 {
		providers = append(providers, NewEnvProvider(config.DefaultSecretsEnvPrefix))
	}

	return NewManager(providers, CacheConfig{
		Enabled: cfg.Cache.Enabled,
		TTL:     cfg.Cache.TTL,
		MaxSize: cfg.Cache.MaxSize,
	}), nil
}

func closeProviders(providers []SecretProvider) {
	for _, p := range providers {
		if c, ok := p.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// GetSecret returns the cached value or the first successful provider
// result. The error wraps ErrSecretNotFound when no provider holds it.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, provider, ok := m.cache.Get(name); ok {
		m.logger.Debug("secret served from cache",
			"provider", provider,
			"name", redactSecretName(name),
		)
		return value, nil
	}

	var lastErr error
	for _, provider := range m.providers {
		if !provider.Supports(name) {
			continue
		}

		value, err := provider.GetSecret(ctx, name)
		if err != nil {
			lastErr = err
			m.logger.Debug("provider failed to get secret",
				"provider", provider.Provider(),
				"name", redactSecretName(name),
				"error", err,
			)
			continue
		}

		m.cache.Set(name, provider.Provider(), value)
		m.logger.Debug("secret retrieved",
			"provider", provider.Provider(),
			"name", redactSecretName(name),
		)
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("%w: %q (no provider supports this secret)", ErrSecretNotFound, name)
}

// ResolveReferences replaces ${secret:name} patterns with secret values.
// Used on connection strings such as the Postgres DSN and Redis URL.
// Unresolvable references are left in place and reported in the error.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var errs []error

	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := secretRefRegex.FindStringSubmatch(match)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})

	if len(errs) > 0 {
		return output, fmt.Errorf("failed to resolve secret references: %w", errors.Join(errs...))
	}
	return output, nil
}

// Refresh reloads all refreshable providers and forgets every cached value,
// so the next lookup of a rotated key reaches its provider.
func (m *Manager) Refresh(ctx context.Context) error {
	var failed []string
	for _, provider := range m.providers {
		if refreshable, ok := provider.(RefreshableProvider); ok {
			if err := refreshable.Refresh(ctx); err != nil {
				failed = append(failed, fmt.Sprintf("%s: %v", provider.Provider(), err))
				m.logger.Error("failed to refresh provider",
					"provider", provider.Provider(),
					"error", err,
				)
			}
		}
		if n := m.cache.Forget(provider.Provider()); n > 0 {
			m.logger.Info("cached secrets dropped", "provider", provider.Provider(), "count", n)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to refresh some providers: %s", strings.Join(failed, "; "))
	}
	return nil
}

// ListSecrets returns the sorted union of secret names across providers.
func (m *Manager) ListSecrets(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, provider := range m.providers {
		secrets, err := provider.ListSecrets(ctx)
		if err != nil {
			m.logger.Warn("failed to list secrets from provider",
				"provider", provider.Provider(),
				"error", err,
			)
			continue
		}
		for _, s := range secrets {
			seen[s] = true
		}
	}

	secrets := make([]string, 0, len(seen))
	for s := range seen {
		secrets = append(secrets, s)
	}
	sort.Strings(secrets)
	return secrets, nil
}

// Close releases provider resources such as file watchers.
func (m *Manager) Close() error {
	closeProviders(m.providers)
	return nil
}

// redactSecretName keeps the first and last two characters for log lines.
func redactSecretName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
