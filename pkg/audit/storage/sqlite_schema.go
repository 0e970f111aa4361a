package storage

// SQLiteSchemaVersion is the current SQLite schema version.
const SQLiteSchemaVersion = 1

// SQLiteSchema creates the audit tables. Timestamps are stored as unix
// nanoseconds so that integrity hashes survive the round trip exactly.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS decision_logs (
    id TEXT PRIMARY KEY,
    ts INTEGER NOT NULL,
    partition_key TEXT NOT NULL,
    user_id TEXT NOT NULL,
    operation TEXT NOT NULL,
    decision TEXT NOT NULL,
    classification TEXT NOT NULL DEFAULT '',
    retention_years INTEGER NOT NULL,
    evaluation_time_ms REAL NOT NULL DEFAULT 0,
    hash TEXT NOT NULL,
    outcome TEXT,
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_logs_ts ON decision_logs(ts);
CREATE INDEX IF NOT EXISTS idx_decision_logs_user_ts ON decision_logs(user_id, ts);
CREATE INDEX IF NOT EXISTS idx_decision_logs_tier_ts ON decision_logs(retention_years, ts);
CREATE INDEX IF NOT EXISTS idx_decision_logs_partition ON decision_logs(partition_key);

CREATE TABLE IF NOT EXISTS decision_log_policies (
    log_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    PRIMARY KEY (log_id, policy_id)
);
CREATE INDEX IF NOT EXISTS idx_decision_log_policies_policy ON decision_log_policies(policy_id);

CREATE TABLE IF NOT EXISTS decision_log_flags (
    log_id TEXT NOT NULL,
    flag TEXT NOT NULL,
    PRIMARY KEY (log_id, flag)
);
CREATE INDEX IF NOT EXISTS idx_decision_log_flags_flag ON decision_log_flags(flag);

-- Stored logs never change. Only the outcome column may be filled in, once.
CREATE TRIGGER IF NOT EXISTS decision_logs_immutable
BEFORE UPDATE OF id, ts, partition_key, user_id, operation, decision, classification,
    retention_years, evaluation_time_ms, hash, body ON decision_logs
BEGIN
    SELECT RAISE(ABORT, 'decision logs are immutable');
END;

CREATE TRIGGER IF NOT EXISTS decision_logs_outcome_once
BEFORE UPDATE OF outcome ON decision_logs
WHEN OLD.outcome IS NOT NULL
BEGIN
    SELECT RAISE(ABORT, 'outcome already recorded');
END;

CREATE TABLE IF NOT EXISTS operations_audit (
    id TEXT PRIMARY KEY,
    at INTEGER NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    details TEXT,
    success INTEGER NOT NULL,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_operations_audit_at ON operations_audit(at);

CREATE TRIGGER IF NOT EXISTS operations_audit_no_update
BEFORE UPDATE ON operations_audit
BEGIN
    SELECT RAISE(ABORT, 'operations audit is append-only');
END;

CREATE TRIGGER IF NOT EXISTS operations_audit_no_delete
BEFORE DELETE ON operations_audit
BEGIN
    SELECT RAISE(ABORT, 'operations audit is append-only');
END;

CREATE TABLE IF NOT EXISTS report_snapshots (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    period_start INTEGER NOT NULL,
    period_end INTEGER NOT NULL,
    generated_at INTEGER NOT NULL,
    generated_by TEXT NOT NULL DEFAULT '',
    payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_report_snapshots_type ON report_snapshots(type, generated_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// sqliteInsertSchemaVersion records the schema version once.
const sqliteInsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// sqliteGetSchemaVersion returns the latest schema version.
const sqliteGetSchemaVersion = `SELECT MAX(version) FROM schema_version`
