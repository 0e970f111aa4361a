package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

// createTempDB creates a temporary SQLite database for testing.
func createTempDB(t *testing.T, driver string) (*SQLiteStorage, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "audit.db")
	config := &SQLiteConfig{
		Path:         dbPath,
		Driver:       driver,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}

	s, err := NewSQLiteStorage(config)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dbPath
}

var drivers = []string{DriverCGO, DriverPureGo}

func TestSQLiteStorage_Backend(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s, dbPath := createTempDB(t, driver)
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				t.Fatal("Database file was not created")
			}
			runBackendSuite(t, s)
		})
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s, dbPath := createTempDB(t, driver)
			ctx := context.Background()
			if err := s.Store(ctx, newLog("log-1", "alice", base, decision.Allow, 7)); err != nil {
				t.Fatalf("Store() failed: %v", err)
			}
			s.Close()

			reopened, err := NewSQLiteStorage(&SQLiteConfig{Path: dbPath, Driver: driver, WALMode: true})
			if err != nil {
				t.Fatalf("reopen failed: %v", err)
			}
			defer reopened.Close()

			got, err := reopened.Get(ctx, "log-1")
			if err != nil {
				t.Fatalf("Get() after reopen failed: %v", err)
			}
			if !got.Timestamp.Equal(base) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, base)
			}
		})
	}
}

func TestSQLiteStorage_RowsAreImmutable(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			s, _ := createTempDB(t, driver)
			ctx := context.Background()
			if err := s.Store(ctx, newLog("log-1", "alice", base, decision.Allow, 7)); err != nil {
				t.Fatalf("Store() failed: %v", err)
			}

			_, err := s.db.ExecContext(ctx, `UPDATE decision_logs SET decision = 'deny' WHERE id = 'log-1'`)
			if err == nil || !strings.Contains(err.Error(), "immutable") {
				t.Errorf("direct UPDATE error = %v, want immutability violation", err)
			}

			if _, err := s.db.ExecContext(ctx, `INSERT INTO operations_audit (id, at, action, success) VALUES ('op-1', 1, 'x', 1)`); err != nil {
				t.Fatalf("insert operation failed: %v", err)
			}
			_, err = s.db.ExecContext(ctx, `DELETE FROM operations_audit WHERE id = 'op-1'`)
			if err == nil || !strings.Contains(err.Error(), "append-only") {
				t.Errorf("DELETE on operations_audit error = %v, want append-only violation", err)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{DriverCGO, "file:a.db?_busy_timeout=2000"},
		{DriverPureGo, "file:a.db?_pragma=busy_timeout(2000)"},
	}
	for _, tt := range tests {
		got := sqliteDSN(&SQLiteConfig{Path: "a.db", Driver: tt.driver, BusyTimeout: 2 * time.Second})
		if got != tt.want {
			t.Errorf("sqliteDSN(%s) = %q, want %q", tt.driver, got, tt.want)
		}
	}
}
