package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider loads secrets from environment variables.
//
// Secret names are converted to uppercase environment variable names with
// hyphens and dots replaced by underscores, then prefixed.
//
// Example:
//   - Secret name: "audit_master_key"
//   - Env var name: "ARBITER_SECRET_AUDIT_MASTER_KEY" (with prefix "ARBITER_SECRET_")
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates a new environment variable secret provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret retrieves a secret from an environment variable.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.secretNameToEnvVar(name)

	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s (env var: %s)", ErrSecretNotFound, name, envVar)
	}
	return value, nil
}

// ListSecrets returns all secret names from environment variables with the
// configured prefix, converted back to lowercase names.
func (p *EnvProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var secrets []string

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, p.Prefix) {
			continue
		}
		name, _, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		secrets = append(secrets, p.envVarToSecretName(name))
	}

	return secrets, nil
}

// Provider returns the provider name.
func (p *EnvProvider) Provider() string {
	return "env"
}

// Supports always returns true so the environment can act as a fallback.
func (p *EnvProvider) Supports(name string) bool {
	return true
}

var envReplacer = strings.NewReplacer("-", "_", ".", "_")

// secretNameToEnvVar converts a secret name to an environment variable name.
func (p *EnvProvider) secretNameToEnvVar(name string) string {
	return p.Prefix + strings.ToUpper(envReplacer.Replace(name))
}

// envVarToSecretName converts an environment variable name back to a secret name.
func (p *EnvProvider) envVarToSecretName(envVar string) string {
	return strings.ToLower(strings.TrimPrefix(envVar, p.Prefix))
}
