package manager

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoaderLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "payments.rego", "package payments\n")
	writeFile(t, dir, "privacy.json", `{"rules":[]}`)
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, ".hidden.rego", "package hidden\n")
	writeFile(t, dir, "empty.yaml", "")
	if err := os.Mkdir(filepath.Join(dir, "nested.rego"), 0o755); err != nil {
		t.Fatal(err)
	}

	docs, errs, err := NewLoader(nil).LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory() failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "payments" || docs[1].ID != "privacy" {
		t.Fatalf("docs = %+v, want payments and privacy", docs)
	}
	if string(docs[0].Content) != "package payments\n" {
		t.Errorf("Content = %q", docs[0].Content)
	}
	if docs[0].Version != ContentVersion([]byte("package payments\n")) {
		t.Errorf("Version = %s", docs[0].Version)
	}
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want the empty file rejected", errs)
	}
	var loadErr *LoadError
	if !errors.As(errs[0], &loadErr) || loadErr.Message != "file is empty" {
		t.Errorf("errs[0] = %v", errs[0])
	}
}

func TestLoaderManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "payments-v2.rego", "package payments\n")
	writeFile(t, dir, "privacy.rego", "package privacy\n")
	writeFile(t, dir, ManifestFile, `
policies:
  - file: payments-v2.rego
    id: payments
    version: "2025.03"
`)

	docs, errs, err := NewLoader(nil).LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory() failed: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if docs[0].ID != "payments" || docs[0].Version != "2025.03" {
		t.Errorf("manifest not applied: %+v", docs[0].PolicyDocument.ID)
	}
	if docs[1].ID != "privacy" {
		t.Errorf("docs[1].ID = %s, want privacy", docs[1].ID)
	}
}

func TestLoaderManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"invalid yaml", "policies: [\n"},
		{"missing file", "policies:\n  - id: x\n"},
		{"duplicate file", "policies:\n  - file: a.rego\n  - file: a.rego\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, ManifestFile, tt.manifest)

			_, _, err := NewLoader(nil).LoadDirectory(dir)
			var merr *ManifestError
			if !errors.As(err, &merr) {
				t.Errorf("LoadDirectory() error = %v, want *ManifestError", err)
			}
		})
	}
}

func TestLoaderDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "payments.json", "{}")
	writeFile(t, dir, "payments.rego", "package payments\n")

	docs, errs, err := NewLoader(nil).LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory() failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Path != filepath.Join(dir, "payments.json") {
		t.Errorf("docs = %+v, want the first file by name", docs)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want one duplicate error", errs)
	}
}

func TestLoaderLimits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "big.rego", "package big\n# padding padding padding\n")
	writeFile(t, dir, "binary.rego", string([]byte{0xff, 0xfe, 0x00}))

	l := NewLoader(&Config{MaxFileSize: 16})
	if _, err := l.LoadFile(filepath.Join(dir, "big.rego")); err == nil {
		t.Error("oversized file should be rejected")
	}
	if _, err := NewLoader(nil).LoadFile(filepath.Join(dir, "binary.rego")); err == nil {
		t.Error("non UTF-8 file should be rejected")
	}
	if _, err := NewLoader(nil).LoadFile(filepath.Join(dir, "missing.rego")); err == nil {
		t.Error("missing file should be rejected")
	}
	if _, _, err := NewLoader(nil).LoadDirectory(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing directory should fail")
	}
}

func TestIsPolicyFile(t *testing.T) {
	l := NewLoader(nil)
	tests := map[string]bool{
		"a.rego":       true,
		"a.JSON":       true,
		"dir/a.yml":    true,
		"a.yaml":       true,
		ManifestFile:   false,
		".a.rego":      false,
		"a.txt":        false,
		"a.rego.swp":   false,
		"/tmp/x/b.yml": true,
	}
	for name, want := range tests {
		if got := l.IsPolicyFile(name); got != want {
			t.Errorf("IsPolicyFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestPolicyID(t *testing.T) {
	if got := PolicyID("/etc/policies/aml.screening.rego"); got != "aml.screening" {
		t.Errorf("PolicyID() = %q", got)
	}
}
