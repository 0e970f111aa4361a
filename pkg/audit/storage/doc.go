// Package storage provides backends for decision logs, the operations audit
// trail and report snapshots.
//
// # Storage Backends
//
//   - Memory: in-memory storage for tests and development
//   - SQLite: embedded database for single-node deployments. Both the cgo
//     driver (github.com/mattn/go-sqlite3) and the pure Go driver
//     (modernc.org/sqlite) are supported.
//   - PostgreSQL: partitioned storage for production volumes
//
// # Immutability
//
// Every backend rejects changes to stored logs. SQL backends enforce this
// with triggers: only the outcome column may be filled in, and only once.
// The operations audit table is append-only.
//
// # Partitioning
//
// PostgreSQL partitions decision_logs by retention tier and then by month
// (decision_logs_r7_2025_03). A retention purge drops every month
// partition that ends before the cutoff and deletes rows in the boundary
// month, all in one transaction.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:    "data/audit.db",
//	    WALMode: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	logs, err := store.Query(ctx, &audit.Query{UserID: "user-1", Limit: 50})
package storage
