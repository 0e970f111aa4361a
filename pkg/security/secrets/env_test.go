package secrets

import (
	"context"
	"errors"
	"testing"
)

func TestEnvProvider_GetSecret(t *testing.T) {
	t.Setenv("ARBITER_SECRET_AUDIT_MASTER_KEY", "c2VjcmV0")
	t.Setenv("ARBITER_SECRET_PG_DSN", "postgres://x")

	p := NewEnvProvider("ARBITER_SECRET_")

	tests := []struct {
		name    string
		secret  string
		want    string
		wantErr bool
	}{
		{"underscores", "audit_master_key", "c2VjcmV0", false},
		{"hyphens", "audit-master-key", "c2VjcmV0", false},
		{"dots", "pg.dsn", "postgres://x", false},
		{"missing", "nope", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.secret)
			if tt.wantErr {
				if !errors.Is(err, ErrSecretNotFound) {
					t.Errorf("GetSecret() error = %v, want ErrSecretNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetSecret() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetSecret() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnvProvider_EmptyValueIsMissing(t *testing.T) {
	t.Setenv("ARBITER_SECRET_EMPTY", "")
	p := NewEnvProvider("ARBITER_SECRET_")
	if _, err := p.GetSecret(context.Background(), "empty"); err == nil {
		t.Error("empty variable should be treated as missing")
	}
}

func TestEnvProvider_ListSecrets(t *testing.T) {
	t.Setenv("ARBITER_TESTLIST_ONE", "1")
	t.Setenv("ARBITER_TESTLIST_TWO", "2")

	p := NewEnvProvider("ARBITER_TESTLIST_")
	names, err := p.ListSecrets(context.Background())
	if err != nil {
		t.Fatalf("ListSecrets() failed: %v", err)
	}

	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if len(names) != 2 || !found["one"] || !found["two"] {
		t.Errorf("ListSecrets() = %v, want [one two]", names)
	}
}
