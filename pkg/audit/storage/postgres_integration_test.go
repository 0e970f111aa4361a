//go:build integration

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
)

func startPostgres(t *testing.T) *PostgresStorage {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("arbiter"),
		tcpostgres.WithUsername("arbiter"),
		tcpostgres.WithPassword("arbiter"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	s, err := NewPostgresStorage(ctx, &PostgresConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("NewPostgresStorage() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStorage_Backend(t *testing.T) {
	runBackendSuite(t, startPostgres(t))
}

func TestPostgresStorage_PurgeDropsPartitions(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	jan := time.Date(2018, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2018, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2018, 3, 20, 0, 0, 0, 0, time.UTC)
	logs := []*audit.DecisionLog{
		newLog("jan", "alice", jan, decision.Allow, 7),
		newLog("feb", "alice", feb, decision.Allow, 7),
		newLog("mar-early", "alice", mar.Add(-10*24*time.Hour), decision.Allow, 7),
		newLog("mar-late", "alice", mar.Add(5*24*time.Hour), decision.Allow, 7),
		newLog("other-tier", "alice", jan, decision.Allow, 50),
	}
	if err := s.StoreBatch(ctx, logs); err != nil {
		t.Fatalf("StoreBatch() failed: %v", err)
	}

	n, err := s.Purge(ctx, 7, mar)
	if err != nil {
		t.Fatalf("Purge() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Purge() removed %d, want 3", n)
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = 'decision_logs_r7_2018_01')`).Scan(&exists)
	if err != nil {
		t.Fatalf("catalog query failed: %v", err)
	}
	if exists {
		t.Error("January partition should have been dropped")
	}

	for _, id := range []string{"mar-late", "other-tier"} {
		if _, err := s.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) failed: %v", id, err)
		}
	}
	if _, err := s.Get(ctx, "mar-early"); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("mar-early should be purged, got %v", err)
	}
}

func TestPostgresStorage_RowsAreImmutable(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	if err := s.Store(ctx, newLog("log-1", "alice", base, decision.Allow, 7)); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE decision_logs SET decision = 'deny' WHERE id = 'log-1'`); err == nil {
		t.Error("direct UPDATE should be rejected")
	}
}
