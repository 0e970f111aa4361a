package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"mercator-hq/arbiter/pkg/audit"
)

const postgresBackend = "postgres"

// PostgresConfig contains configuration for the PostgreSQL backend.
type PostgresConfig struct {
	// DSN is the lib/pq connection string.
	DSN string

	// MaxOpenConns is the maximum number of open connections. Default: 20
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections. Default: 10
	MaxIdleConns int

	// ConnMaxLifetime recycles connections. Default: 30m
	ConnMaxLifetime time.Duration
}

// PostgresStorage implements audit.Backend on PostgreSQL with tiered,
// monthly partitions.
type PostgresStorage struct {
	db     *sql.DB
	logger *slog.Logger

	// partitions caches month partitions known to exist.
	partitions sync.Map
}

// NewPostgresStorage connects, creates the schema and verifies its version.
func NewPostgresStorage(ctx context.Context, config *PostgresConfig) (*PostgresStorage, error) {
	if config == nil || config.DSN == "" {
		return nil, audit.NewPersistenceError(postgresBackend, "open", fmt.Errorf("dsn is required"))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 20
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 10
	}
	if config.ConnMaxLifetime <= 0 {
		config.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, audit.NewPersistenceError(postgresBackend, "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, audit.NewPersistenceError(postgresBackend, "ping", err)
	}

	s := &PostgresStorage{
		db:     db,
		logger: slog.Default().With("component", "audit.storage.postgres"),
	}
	if err := s.initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Info("PostgreSQL audit storage initialized")
	return s, nil
}

func (s *PostgresStorage) initialize(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, postgresSchemaLock); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, PostgresSchema); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, postgresInsertSchemaVersion, PostgresSchemaVersion)
		return err
	})
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "create_schema", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, postgresGetSchemaVersion).Scan(&version); err != nil {
		return audit.NewPersistenceError(postgresBackend, "get_schema_version", err)
	}
	if int(version.Int64) != PostgresSchemaVersion {
		return audit.NewPersistenceError(postgresBackend, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", PostgresSchemaVersion, version.Int64))
	}
	return nil
}

func (s *PostgresStorage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// tierTable returns the partition holding one retention tier.
func tierTable(years int) string {
	return fmt.Sprintf("decision_logs_r%d", years)
}

// monthTable returns the month partition of a retention tier.
func monthTable(years int, month time.Time) string {
	return fmt.Sprintf("%s_%s", tierTable(years), month.UTC().Format("2006_01"))
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ensurePartition creates the tier and month partitions for a log if needed.
// DDL commits in its own transaction so a failed insert cannot leave the
// cache pointing at a rolled-back table.
func (s *PostgresStorage) ensurePartition(ctx context.Context, years int, ts time.Time) error {
	start := monthStart(ts)
	name := monthTable(years, start)
	if _, ok := s.partitions.Load(name); ok {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, postgresSchemaLock); err != nil {
			return err
		}
		tier := pq.QuoteIdentifier(tierTable(years))
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF decision_logs FOR VALUES IN (%d) PARTITION BY RANGE (ts)`,
			tier, years)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM (%s) TO (%s)`,
			pq.QuoteIdentifier(name), tier,
			pq.QuoteLiteral(start.Format(time.RFC3339)),
			pq.QuoteLiteral(start.AddDate(0, 1, 0).Format(time.RFC3339))))
		return err
	})
	if err != nil {
		return err
	}

	s.partitions.Store(name, struct{}{})
	s.logger.Debug("created partition", "partition", name)
	return nil
}

// Store implements audit.Storage.
func (s *PostgresStorage) Store(ctx context.Context, log *audit.DecisionLog) error {
	return s.StoreBatch(ctx, []*audit.DecisionLog{log})
}

// StoreBatch implements audit.Storage.
func (s *PostgresStorage) StoreBatch(ctx context.Context, logs []*audit.DecisionLog) error {
	if len(logs) == 0 {
		return nil
	}
	for _, log := range logs {
		if err := s.ensurePartition(ctx, log.Audit.RetentionYears, log.Timestamp); err != nil {
			return audit.NewPersistenceError(postgresBackend, "create_partition", err)
		}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, log := range logs {
			if err := s.insert(ctx, tx, log); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "store", err)
	}
	return nil
}

func (s *PostgresStorage) insert(ctx context.Context, tx *sql.Tx, log *audit.DecisionLog) error {
	body, outcome, err := encodeLog(log)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO decision_log_ids (id, retention_years, ts) VALUES ($1, $2, $3)`,
		log.ID, log.Audit.RetentionYears, log.Timestamp); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decision_logs (
			id, ts, partition_key, user_id, operation, decision, classification,
			retention_years, evaluation_time_ms, policies, flags, hash, outcome, body
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		log.ID, log.Timestamp, log.Partition, log.Intent.User.ID,
		string(log.Intent.Operation), string(log.Decision.Decision), string(log.Audit.DataClassification),
		log.Audit.RetentionYears, log.Decision.Performance.EvaluationTimeMs,
		pq.Array(uniqueStrings(log.Decision.EvaluatedPolicies)), pq.Array(uniqueStrings(log.Audit.ComplianceFlags)),
		log.Hash, outcome, body,
	)
	return err
}

// Get implements audit.Storage.
func (s *PostgresStorage) Get(ctx context.Context, id string) (*audit.DecisionLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT l.body, l.outcome
		FROM decision_log_ids i
		JOIN decision_logs l ON l.retention_years = i.retention_years AND l.ts = i.ts AND l.id = i.id
		WHERE i.id = $1`, id)
	log, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, audit.NewPersistenceError(postgresBackend, "get", err)
	}
	return log, nil
}

// Query implements audit.Storage.
func (s *PostgresStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.DecisionLog, error) {
	sqlQuery, args := postgresSelect(q)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewPersistenceError(postgresBackend, "query", err)
	}
	defer rows.Close()

	logs := []*audit.DecisionLog{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, audit.NewPersistenceError(postgresBackend, "scan", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewPersistenceError(postgresBackend, "query", err)
	}
	return logs, nil
}

// QueryStream implements audit.Storage.
func (s *PostgresStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.DecisionLog, <-chan error, error) {
	sqlQuery, args := postgresSelect(q)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, nil, audit.NewPersistenceError(postgresBackend, "query_stream", err)
	}

	logsCh := make(chan *audit.DecisionLog, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(logsCh)
		defer close(errCh)
		defer rows.Close()

		for rows.Next() {
			log, err := scanLog(rows)
			if err != nil {
				errCh <- audit.NewPersistenceError(postgresBackend, "scan", err)
				return
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case logsCh <- log:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- audit.NewPersistenceError(postgresBackend, "query_stream", err)
		}
	}()

	return logsCh, errCh, nil
}

// Count implements audit.Storage.
func (s *PostgresStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	where, args := postgresWhere(q)
	sqlQuery := "SELECT COUNT(*) FROM decision_logs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&n); err != nil {
		return 0, audit.NewPersistenceError(postgresBackend, "count", err)
	}
	return n, nil
}

// SetOutcome implements audit.Storage.
func (s *PostgresStorage) SetOutcome(ctx context.Context, id string, outcome *audit.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "set_outcome", err)
	}

	var years int
	var ts time.Time
	err = s.db.QueryRowContext(ctx, `SELECT retention_years, ts FROM decision_log_ids WHERE id = $1`, id).Scan(&years, &ts)
	if err == sql.ErrNoRows {
		return audit.ErrNotFound
	}
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "set_outcome", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE decision_logs SET outcome = $1
		WHERE retention_years = $2 AND ts = $3 AND id = $4 AND outcome IS NULL`,
		string(data), years, ts, id)
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "set_outcome", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return audit.ErrOutcomeAlreadySet
	}
	return nil
}

// Tiers implements audit.Storage.
func (s *PostgresStorage) Tiers(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT retention_years FROM decision_log_ids ORDER BY retention_years`)
	if err != nil {
		return nil, audit.NewPersistenceError(postgresBackend, "tiers", err)
	}
	defer rows.Close()

	var tiers []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, audit.NewPersistenceError(postgresBackend, "tiers", err)
		}
		tiers = append(tiers, y)
	}
	return tiers, rows.Err()
}

// Purge implements audit.Storage. Month partitions that end on or before
// the cutoff are dropped; the boundary month is deleted row by row. The
// whole purge runs in one transaction.
func (s *PostgresStorage) Purge(ctx context.Context, retentionYears int, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()
	var total int64
	var dropped []string

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, postgresSchemaLock); err != nil {
			return err
		}

		partitions, err := listMonthPartitions(ctx, tx, retentionYears)
		if err != nil {
			return err
		}
		for name, start := range partitions {
			if start.AddDate(0, 1, 0).After(cutoff) {
				continue
			}
			var n int64
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(name)).Scan(&n); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, "DROP TABLE "+pq.QuoteIdentifier(name)); err != nil {
				return err
			}
			total += n
			dropped = append(dropped, name)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM decision_logs WHERE retention_years = $1 AND ts < $2`, retentionYears, cutoff)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n

		_, err = tx.ExecContext(ctx, `DELETE FROM decision_log_ids WHERE retention_years = $1 AND ts < $2`, retentionYears, cutoff)
		return err
	})
	if err != nil {
		return 0, audit.NewPersistenceError(postgresBackend, "purge", err)
	}

	for _, name := range dropped {
		s.partitions.Delete(name)
	}
	s.logger.Info("purged retention tier",
		"retention_years", retentionYears,
		"cutoff", cutoff,
		"deleted", total,
		"dropped_partitions", len(dropped),
	)
	return total, nil
}

// listMonthPartitions returns the month partitions of a tier keyed by name.
func listMonthPartitions(ctx context.Context, tx *sql.Tx, years int) (map[string]time.Time, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT c.relname
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		JOIN pg_class p ON p.oid = i.inhparent
		WHERE p.relname = $1`, tierTable(years))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prefix := tierTable(years) + "_"
	out := make(map[string]time.Time)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		start, err := time.Parse("2006_01", strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		out[name] = start
	}
	return out, rows.Err()
}

// Ping implements audit.Storage.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements audit.Storage.
func (s *PostgresStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewPersistenceError(postgresBackend, "close", err)
	}
	return nil
}

// AppendOperation implements audit.OperationsStore.
func (s *PostgresStorage) AppendOperation(ctx context.Context, op *audit.OperationRecord) error {
	details, err := json.Marshal(op.Details)
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "append_operation", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operations_audit (id, at, actor, action, target, details, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		op.ID, op.At, op.Actor, op.Action, op.Target, string(details), op.Success, nullString(op.Error),
	)
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "append_operation", err)
	}
	return nil
}

// ListOperations implements audit.OperationsStore.
func (s *PostgresStorage) ListOperations(ctx context.Context, since time.Time, limit int) ([]*audit.OperationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, actor, action, target, details, success, error
		FROM operations_audit WHERE at >= $1 ORDER BY at DESC, id DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, audit.NewPersistenceError(postgresBackend, "list_operations", err)
	}
	defer rows.Close()

	var out []*audit.OperationRecord
	for rows.Next() {
		var (
			op      audit.OperationRecord
			details sql.NullString
			errText sql.NullString
		)
		if err := rows.Scan(&op.ID, &op.At, &op.Actor, &op.Action, &op.Target, &details, &op.Success, &errText); err != nil {
			return nil, audit.NewPersistenceError(postgresBackend, "list_operations", err)
		}
		op.At = op.At.UTC()
		op.Error = errText.String
		if details.Valid && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &op.Details); err != nil {
				return nil, audit.NewPersistenceError(postgresBackend, "list_operations", err)
			}
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

// SaveReport implements audit.OperationsStore.
func (s *PostgresStorage) SaveReport(ctx context.Context, r *audit.ReportSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_snapshots (id, type, period_start, period_end, generated_at, generated_by, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Type, r.PeriodStart, r.PeriodEnd, r.GeneratedAt, r.GeneratedBy, r.Payload,
	)
	if err != nil {
		return audit.NewPersistenceError(postgresBackend, "save_report", err)
	}
	return nil
}

// ListReports implements audit.OperationsStore.
func (s *PostgresStorage) ListReports(ctx context.Context, reportType string, limit int) ([]*audit.ReportSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, period_start, period_end, generated_at, generated_by, payload
		FROM report_snapshots
		WHERE ($1 = '' OR type = $1)
		ORDER BY generated_at DESC, id DESC LIMIT $2`,
		reportType, limit,
	)
	if err != nil {
		return nil, audit.NewPersistenceError(postgresBackend, "list_reports", err)
	}
	defer rows.Close()

	var out []*audit.ReportSnapshot
	for rows.Next() {
		var r audit.ReportSnapshot
		if err := rows.Scan(&r.ID, &r.Type, &r.PeriodStart, &r.PeriodEnd, &r.GeneratedAt, &r.GeneratedBy, &r.Payload); err != nil {
			return nil, audit.NewPersistenceError(postgresBackend, "list_reports", err)
		}
		r.PeriodStart = r.PeriodStart.UTC()
		r.PeriodEnd = r.PeriodEnd.UTC()
		r.GeneratedAt = r.GeneratedAt.UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

func postgresSelect(q *audit.Query) (string, []any) {
	where, args := postgresWhere(q)
	sqlQuery := "SELECT body, outcome FROM decision_logs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	dir := sortDirection(q.SortOrder)
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumn(q.SortBy), dir, dir)
	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
	}
	return sqlQuery, args
}

// postgresWhere builds a WHERE clause (without the keyword) using $n
// placeholders.
func postgresWhere(q *audit.Query) (string, []any) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if !q.Start.IsZero() {
		add("ts >= $%d", q.Start)
	}
	if !q.End.IsZero() {
		add("ts <= $%d", q.End)
	}
	if q.UserID != "" {
		add("user_id = $%d", q.UserID)
	}
	if q.Operation != "" {
		add("operation = $%d", string(q.Operation))
	}
	if q.Decision != "" {
		add("decision = $%d", string(q.Decision))
	}
	if q.RetentionYears != 0 {
		add("retention_years = $%d", q.RetentionYears)
	}
	if len(q.PolicyIDs) > 0 {
		add("policies && $%d", pq.Array(q.PolicyIDs))
	}
	if len(q.ComplianceFlags) > 0 {
		add("flags @> $%d", pq.Array(q.ComplianceFlags))
	}
	if len(q.Classifications) > 0 {
		add("classification = ANY($%d)", pq.Array(classificationStrings(q)))
	}

	return strings.Join(conditions, " AND "), args
}
