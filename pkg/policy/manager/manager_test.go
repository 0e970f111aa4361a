package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/evaluator"
)

// recordingTarget records pushed documents.
type recordingTarget struct {
	mu       sync.Mutex
	docs     map[string]evaluator.PolicyDocument
	loads    int
	removes  int
	rejectID string
}

func newRecordingTarget() *recordingTarget {
	return &recordingTarget{docs: map[string]evaluator.PolicyDocument{}}
}

func (r *recordingTarget) LoadPolicy(_ context.Context, doc evaluator.PolicyDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == r.rejectID {
		return errors.New("rejected")
	}
	r.loads++
	r.docs[doc.ID] = doc
	return nil
}

func (r *recordingTarget) RemovePolicy(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	delete(r.docs, id)
	return nil
}

func (r *recordingTarget) snapshot() (map[string]string, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.docs))
	for id, d := range r.docs {
		out[id] = string(d.Content)
	}
	return out, r.loads, r.removes
}

func TestNewValidation(t *testing.T) {
	if _, err := New(&Config{}, newRecordingTarget()); err == nil {
		t.Error("New() without a directory should fail")
	}
	if _, err := New(&Config{Directory: "x"}, nil); err == nil {
		t.Error("New() without a target should fail")
	}
}

func TestSyncReconciles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	target := newRecordingTarget()
	m, err := New(&Config{Directory: dir}, target)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	writeFile(t, dir, "payments.rego", "v1")
	writeFile(t, dir, "privacy.rego", "v1")

	result, err := m.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if len(result.Loaded) != 2 || result.Err() != nil {
		t.Fatalf("first sync = %+v", result)
	}

	result, _ = m.Sync(ctx)
	if len(result.Loaded) != 0 || result.Unchanged != 2 {
		t.Errorf("unchanged sync = %+v", result)
	}

	writeFile(t, dir, "payments.rego", "v2")
	if err := os.Remove(filepath.Join(dir, "privacy.rego")); err != nil {
		t.Fatal(err)
	}
	result, _ = m.Sync(ctx)
	if len(result.Loaded) != 1 || result.Loaded[0] != "payments" {
		t.Errorf("Loaded = %v, want [payments]", result.Loaded)
	}
	if len(result.Removed) != 1 || result.Removed[0] != "privacy" {
		t.Errorf("Removed = %v, want [privacy]", result.Removed)
	}

	docs, loads, removes := target.snapshot()
	if docs["payments"] != "v2" || len(docs) != 1 {
		t.Errorf("target docs = %v", docs)
	}
	if loads != 3 || removes != 1 {
		t.Errorf("loads=%d removes=%d, want 3 and 1", loads, removes)
	}
	if entries := m.Entries(); len(entries) != 1 || entries[0].ID != "payments" {
		t.Errorf("Entries() = %+v", entries)
	}
}

func TestSyncRetriesRejectedDocuments(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	target := newRecordingTarget()
	target.rejectID = "payments"
	m, _ := New(&Config{Directory: dir}, target)

	writeFile(t, dir, "payments.rego", "v1")
	result, err := m.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	var syncErr *SyncError
	if len(result.Errors) != 1 || !errors.As(result.Errors[0], &syncErr) || syncErr.Operation != "load" {
		t.Fatalf("Errors = %v, want one load SyncError", result.Errors)
	}
	if result.Err() == nil {
		t.Error("Err() should report the rejection")
	}

	target.mu.Lock()
	target.rejectID = ""
	target.mu.Unlock()

	result, _ = m.Sync(ctx)
	if len(result.Loaded) != 1 {
		t.Errorf("rejected document was not retried: %+v", result)
	}
}

func TestStartWatchesDirectory(t *testing.T) {
	dir := t.TempDir()
	target := newRecordingTarget()
	writeFile(t, dir, "payments.rego", "v1")

	m, err := New(&Config{Directory: dir, Watch: true, Debounce: 20 * time.Millisecond}, target)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer m.Close()

	if docs, _, _ := target.snapshot(); docs["payments"] != "v1" {
		t.Fatalf("initial sync missing: %v", docs)
	}

	writeFile(t, dir, "payments.rego", "v2")
	writeFile(t, dir, "aml.json", "{}")

	deadline := time.Now().Add(5 * time.Second)
	for {
		docs, _, _ := target.snapshot()
		if docs["payments"] == "v2" && docs["aml"] == "{}" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watcher did not sync changes: %v", docs)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStartMissingDirectory(t *testing.T) {
	m, _ := New(&Config{Directory: filepath.Join(t.TempDir(), "missing")}, newRecordingTarget())
	if err := m.Start(context.Background()); err == nil {
		t.Error("Start() on a missing directory should fail")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() without a watcher failed: %v", err)
	}
}
