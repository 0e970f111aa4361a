package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/arbiter/pkg/audit"
)

// SQLite driver names.
const (
	// DriverCGO is github.com/mattn/go-sqlite3.
	DriverCGO = "sqlite3"
	// DriverPureGo is modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

const sqliteBackend = "sqlite"

// SQLiteConfig contains configuration for the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: DriverCGO (default) or
	// DriverPureGo for builds without cgo.
	Driver string

	// MaxOpenConns is the maximum number of open connections. Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections. Default: 5
	MaxIdleConns int

	// WALMode enables write-ahead logging. Default: true
	WALMode bool

	// BusyTimeout is how long to wait on a locked database. Default: 5s
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements audit.Backend on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open(config.Driver, sqliteDSN(config))
	if err != nil {
		return nil, audit.NewPersistenceError(sqliteBackend, "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite audit storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

// sqliteDSN builds a DSN that applies the busy timeout on every pooled
// connection. The two drivers spell pragmas differently.
func sqliteDSN(config *SQLiteConfig) string {
	ms := config.BusyTimeout.Milliseconds()
	if config.Driver == DriverPureGo {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", config.Path, ms)
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d", config.Path, ms)
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return audit.NewPersistenceError(sqliteBackend, "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(SQLiteSchema); err != nil {
		return audit.NewPersistenceError(sqliteBackend, "create_schema", err)
	}
	if _, err := s.db.Exec(sqliteInsertSchemaVersion, SQLiteSchemaVersion); err != nil {
		return audit.NewPersistenceError(sqliteBackend, "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(sqliteGetSchemaVersion).Scan(&version); err != nil {
		return audit.NewPersistenceError(sqliteBackend, "get_schema_version", err)
	}
	if int(version.Int64) != SQLiteSchemaVersion {
		return audit.NewPersistenceError(sqliteBackend, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SQLiteSchemaVersion, version.Int64))
	}
	return nil
}

// Store implements audit.Storage.
func (s *SQLiteStorage) Store(ctx context.Context, log *audit.DecisionLog) error {
	return s.StoreBatch(ctx, []*audit.DecisionLog{log})
}

// StoreBatch implements audit.Storage. All logs are written in one
// transaction.
func (s *SQLiteStorage) StoreBatch(ctx context.Context, logs []*audit.DecisionLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.NewPersistenceError(sqliteBackend, "store", err)
	}
	defer tx.Rollback()

	for _, log := range logs {
		if err := s.insert(ctx, tx, log); err != nil {
			return audit.NewPersistenceError(sqliteBackend, "store", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return audit.NewPersistenceError(sqliteBackend, "store", err)
	}
	return nil
}

func (s *SQLiteStorage) insert(ctx context.Context, tx *sql.Tx, log *audit.DecisionLog) error {
	body, outcome, err := encodeLog(log)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO decision_logs (
			id, ts, partition_key, user_id, operation, decision, classification,
			retention_years, evaluation_time_ms, hash, outcome, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Timestamp.UnixNano(), log.Partition, log.Intent.User.ID,
		string(log.Intent.Operation), string(log.Decision.Decision), string(log.Audit.DataClassification),
		log.Audit.RetentionYears, log.Decision.Performance.EvaluationTimeMs, log.Hash, outcome, body,
	)
	if err != nil {
		return err
	}

	for _, p := range uniqueStrings(log.Decision.EvaluatedPolicies) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO decision_log_policies (log_id, policy_id) VALUES (?, ?)`, log.ID, p); err != nil {
			return err
		}
	}
	for _, f := range uniqueStrings(log.Audit.ComplianceFlags) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO decision_log_flags (log_id, flag) VALUES (?, ?)`, log.ID, f); err != nil {
			return err
		}
	}
	return nil
}

// Get implements audit.Storage.
func (s *SQLiteStorage) Get(ctx context.Context, id string) (*audit.DecisionLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body, outcome FROM decision_logs WHERE id = ?`, id)
	log, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, audit.NewPersistenceError(sqliteBackend, "get", err)
	}
	return log, nil
}

// Query implements audit.Storage.
func (s *SQLiteStorage) Query(ctx context.Context, q *audit.Query) ([]*audit.DecisionLog, error) {
	sqlQuery, args := s.selectQuery(q)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewPersistenceError(sqliteBackend, "query", err)
	}
	defer rows.Close()

	logs := []*audit.DecisionLog{}
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, audit.NewPersistenceError(sqliteBackend, "scan", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewPersistenceError(sqliteBackend, "query", err)
	}
	return logs, nil
}

// QueryStream implements audit.Storage.
func (s *SQLiteStorage) QueryStream(ctx context.Context, q *audit.Query) (<-chan *audit.DecisionLog, <-chan error, error) {
	sqlQuery, args := s.selectQuery(q)

	logsCh := make(chan *audit.DecisionLog, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(logsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- audit.NewPersistenceError(sqliteBackend, "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			log, err := scanLog(rows)
			if err != nil {
				errCh <- audit.NewPersistenceError(sqliteBackend, "scan", err)
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
			errCh <- audit.NewPersistenceError(sqliteBackend, "query_stream", err)
		}
	}()

	return logsCh, errCh, nil
}

// Count implements audit.Storage.
func (s *SQLiteStorage) Count(ctx context.Context, q *audit.Query) (int64, error) {
	where, args := sqliteWhere(q)
	sqlQuery := "SELECT COUNT(*) FROM decision_logs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&n); err != nil {
		return 0, audit.NewPersistenceError(sqliteBackend, "count", err)
	}
	return n, nil
}

// SetOutcome implements audit.Storage.
func (s *SQLiteStorage) SetOutcome(ctx context.Context, id string, outcome *audit.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return audit.NewPersistenceError(sqliteBackend, "set_outcome", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE decision_logs SET outcome = ? WHERE id = ? AND outcome IS NULL`, string(data), id)
	if err != nil {
		return audit.NewPersistenceError(sqliteBackend, "set_outcome", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM decision_logs WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return audit.ErrNotFound
	}
	if err != nil {
		return audit.NewPersistenceError(sqliteBackend, "set_outcome", err)
	}
	return audit.ErrOutcomeAlreadySet
}

// Tiers implements audit.Storage.
func (s *SQLiteStorage) Tiers(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT retention_years FROM decision_logs ORDER BY retention_years`)
	if err != nil {
		return nil, audit.NewPersistenceError(sqliteBackend, "tiers", err)
	}
	defer rows.Close()

	var tiers []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, audit.NewPersistenceError(sqliteBackend, "tiers", err)
		}
		tiers = append(tiers, y)
	}
	return tiers, rows.Err()
}

// Purge implements audit.Storage. The tier is removed in one transaction.
func (s *SQLiteStorage) Purge(ctx context.Context, retentionYears int, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, audit.NewPersistenceError(sqliteBackend, "purge", err)
	}
	defer tx.Rollback()

	const expired = `SELECT id FROM decision_logs WHERE retention_years = ? AND ts < ?`
	args := []any{retentionYears, cutoff.UnixNano()}

	for _, child := range []string{"decision_log_policies", "decision_log_flags"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+child+" WHERE log_id IN ("+expired+")", args...); err != nil {
			return 0, audit.NewPersistenceError(sqliteBackend, "purge", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM decision_logs WHERE retention_years = ? AND ts < ?`, args...)
	if err != nil {
		return 0, audit.NewPersistenceError(sqliteBackend, "purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, audit.NewPersistenceError(sqliteBackend, "purge", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, audit.NewPersistenceError(sqliteBackend, "purge", err)
	}

	s.logger.Info("purged retention tier",
		"retention_years", retentionYears,
		"cutoff", cutoff,
		"deleted", n,
	)
	return n, nil
}

// Ping implements audit.Storage.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements audit.Storage.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewPersistenceError(sqliteBackend, "close", err)
	}
	s.logger.Info("SQLite audit storage closed")
	return nil
}

// AppendOperation implements audit.OperationsStore.
func (s *SQLiteStorage) AppendOperation(ctx context.Context, op *audit.OperationRecord) error {
	details, err := json.Marshal(op.Details)
	if err != nil {
		return audit.NewPersistenceError(sqliteBackend, "append_operation", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operations_audit (id, at, actor, action, target, details, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.At.UnixNano(), op.Actor, op.Action, op.Target, string(details), op.Success, nullString(op.Error),
	)
	if err != nil {
		return audit.NewPersistenceError(sqliteBackend, "append_operation", err)
	}
	return nil
}

// ListOperations implements audit.OperationsStore.
func (s *SQLiteStorage) ListOperations(ctx context.Context, since time.Time, limit int) ([]*audit.OperationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, actor, action, target, details, success, error
		FROM operations_audit WHERE at >= ? ORDER BY at DESC, id DESC LIMIT ?`,
		since.UnixNano(), limit,
	)
	if err != nil {
		return nil, audit.NewPersistenceError(sqliteBackend, "list_operations", err)
	}
	defer rows.Close()

	var out []*audit.OperationRecord
	for rows.Next() {
		var (
			op      audit.OperationRecord
			at      int64
			details sql.NullString
			errText sql.NullString
		)
		if err := rows.Scan(&op.ID, &at, &op.Actor, &op.Action, &op.Target, &details, &op.Success, &errText); err != nil {
			return nil, audit.NewPersistenceError(sqliteBackend, "list_operations", err)
		}
		op.At = time.Unix(0, at).UTC()
		op.Error = errText.String
		if details.Valid && details.String != "null" {
			if err := json.Unmarshal([]byte(details.String), &op.Details); err != nil {
				return nil, audit.NewPersistenceError(sqliteBackend, "list_operations", err)
			}
		}
		out = append(out, &op)
	}
	return out, rows.Err()
}

// SaveReport implements audit.OperationsStore.
func (s *SQLiteStorage) SaveReport(ctx context.Context, r *audit.ReportSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_snapshots (id, type, period_start, period_end, generated_at, generated_by, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.PeriodStart.UnixNano(), r.PeriodEnd.UnixNano(), r.GeneratedAt.UnixNano(), r.GeneratedBy, r.Payload,
	)
	if err != nil {
		return audit.NewPersistenceError(sqliteBackend, "save_report", err)
	}
	return nil
}

// ListReports implements audit.OperationsStore.
func (s *SQLiteStorage) ListReports(ctx context.Context, reportType string, limit int) ([]*audit.ReportSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, type, period_start, period_end, generated_at, generated_by, payload FROM report_snapshots`
	var args []any
	if reportType != "" {
		query += ` WHERE type = ?`
		args = append(args, reportType)
	}
	query += ` ORDER BY generated_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, audit.NewPersistenceError(sqliteBackend, "list_reports", err)
	}
	defer rows.Close()

	var out []*audit.ReportSnapshot
	for rows.Next() {
		var (
			r                 audit.ReportSnapshot
			start, end, genAt int64
		)
		if err := rows.Scan(&r.ID, &r.Type, &start, &end, &genAt, &r.GeneratedBy, &r.Payload); err != nil {
			return nil, audit.NewPersistenceError(sqliteBackend, "list_reports", err)
		}
		r.PeriodStart = time.Unix(0, start).UTC()
		r.PeriodEnd = time.Unix(0, end).UTC()
		r.GeneratedAt = time.Unix(0, genAt).UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) selectQuery(q *audit.Query) (string, []any) {
	where, args := sqliteWhere(q)
	sqlQuery := "SELECT body, outcome FROM decision_logs"
	if where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumn(q.SortBy), sortDirection(q.SortOrder), sortDirection(q.SortOrder))
	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			sqlQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	} else if q.Offset > 0 {
		sqlQuery += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}
	return sqlQuery, args
}

// sqliteWhere builds a WHERE clause (without the keyword) and its args.
func sqliteWhere(q *audit.Query) (string, []any) {
	var conditions []string
	var args []any

	if !q.Start.IsZero() {
		conditions = append(conditions, "ts >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		conditions = append(conditions, "ts <= ?")
		args = append(args, q.End.UnixNano())
	}
	if q.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.Operation != "" {
		conditions = append(conditions, "operation = ?")
		args = append(args, string(q.Operation))
	}
	if q.Decision != "" {
		conditions = append(conditions, "decision = ?")
		args = append(args, string(q.Decision))
	}
	if q.RetentionYears != 0 {
		conditions = append(conditions, "retention_years = ?")
		args = append(args, q.RetentionYears)
	}
	if len(q.PolicyIDs) > 0 {
		conditions = append(conditions, "id IN (SELECT log_id FROM decision_log_policies WHERE policy_id IN ("+placeholders(len(q.PolicyIDs))+"))")
		for _, p := range q.PolicyIDs {
			args = append(args, p)
		}
	}
	if flags := uniqueStrings(q.ComplianceFlags); len(flags) > 0 {
		conditions = append(conditions, "id IN (SELECT log_id FROM decision_log_flags WHERE flag IN ("+placeholders(len(flags))+") GROUP BY log_id HAVING COUNT(DISTINCT flag) = ?)")
		for _, f := range flags {
			args = append(args, f)
		}
		args = append(args, len(flags))
	}
	if len(q.Classifications) > 0 {
		conditions = append(conditions, "classification IN ("+placeholders(len(q.Classifications))+")")
		for _, c := range classificationStrings(q) {
			args = append(args, c)
		}
	}

	return strings.Join(conditions, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// encodeLog returns the JSON body (without outcome) and the outcome column.
func encodeLog(log *audit.DecisionLog) (string, any, error) {
	cp := *log
	cp.Outcome = nil
	body, err := json.Marshal(&cp)
	if err != nil {
		return "", nil, fmt.Errorf("encode decision log: %w", err)
	}
	var outcome any
	if log.Outcome != nil {
		data, err := json.Marshal(log.Outcome)
		if err != nil {
			return "", nil, fmt.Errorf("encode outcome: %w", err)
		}
		outcome = string(data)
	}
	return string(body), outcome, nil
}

func scanLog(row rowScanner) (*audit.DecisionLog, error) {
	var body string
	var outcome sql.NullString
	if err := row.Scan(&body, &outcome); err != nil {
		return nil, err
	}
	return decodeLog([]byte(body), outcome)
}

func decodeLog(body []byte, outcome sql.NullString) (*audit.DecisionLog, error) {
	var log audit.DecisionLog
	if err := json.Unmarshal(body, &log); err != nil {
		return nil, fmt.Errorf("decode decision log: %w", err)
	}
	if outcome.Valid && outcome.String != "" {
		var o audit.Outcome
		if err := json.Unmarshal([]byte(outcome.String), &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		log.Outcome = &o
	}
	return &log, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
