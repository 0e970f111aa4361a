package secrets

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when no provider holds the requested secret.
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider retrieves secrets from a backend.
//
// Implementations read environment variables or mounted files. Providers
// are chained by the Manager in configuration order.
type SecretProvider interface {
	// GetSecret retrieves a secret by name.
	GetSecret(ctx context.Context, name string) (string, error)

	// ListSecrets returns all secret names available from this provider.
	// Values are never included.
	ListSecrets(ctx context.Context) ([]string, error)

	// Provider returns the provider name ("env" or "file").
	Provider() string

	// Supports indicates if this provider can serve the given secret name.
	Supports(name string) bool
}

// RefreshableProvider can reload secrets without restart, which is how the
// audit master key is rotated.
type RefreshableProvider interface {
	SecretProvider

	// Refresh drops any provider-side cache so the next read hits the backend.
	Refresh(ctx context.Context) error
}
