package storage

// PostgresSchemaVersion is the current PostgreSQL schema version.
const PostgresSchemaVersion = 1

// PostgresSchema creates the audit tables. decision_logs is partitioned by
// retention tier and then by month so that retention purges drop whole
// partitions. decision_log_ids enforces global id uniqueness, which a
// partitioned primary key cannot.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS decision_log_ids (
    id TEXT PRIMARY KEY,
    retention_years INTEGER NOT NULL,
    ts TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_log_ids_tier_ts ON decision_log_ids (retention_years, ts);

CREATE TABLE IF NOT EXISTS decision_logs (
    id TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    partition_key TEXT NOT NULL,
    user_id TEXT NOT NULL,
    operation TEXT NOT NULL,
    decision TEXT NOT NULL,
    classification TEXT NOT NULL DEFAULT '',
    retention_years INTEGER NOT NULL,
    evaluation_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    policies TEXT[] NOT NULL DEFAULT '{}',
    flags TEXT[] NOT NULL DEFAULT '{}',
    hash TEXT NOT NULL,
    outcome JSONB,
    body JSONB NOT NULL,
    PRIMARY KEY (retention_years, ts, id)
) PARTITION BY LIST (retention_years);

CREATE INDEX IF NOT EXISTS idx_decision_logs_id ON decision_logs (id);
CREATE INDEX IF NOT EXISTS idx_decision_logs_user_ts ON decision_logs (user_id, ts);
CREATE INDEX IF NOT EXISTS idx_decision_logs_policies ON decision_logs USING GIN (policies);
CREATE INDEX IF NOT EXISTS idx_decision_logs_flags ON decision_logs USING GIN (flags);

CREATE OR REPLACE FUNCTION arbiter_decision_logs_guard() RETURNS trigger AS $$
BEGIN
    IF (NEW.id, NEW.ts, NEW.partition_key, NEW.user_id, NEW.operation, NEW.decision,
        NEW.classification, NEW.retention_years, NEW.evaluation_time_ms, NEW.policies,
        NEW.flags, NEW.hash, NEW.body)
       IS DISTINCT FROM
       (OLD.id, OLD.ts, OLD.partition_key, OLD.user_id, OLD.operation, OLD.decision,
        OLD.classification, OLD.retention_years, OLD.evaluation_time_ms, OLD.policies,
        OLD.flags, OLD.hash, OLD.body) THEN
        RAISE EXCEPTION 'decision logs are immutable';
    END IF;
    IF OLD.outcome IS NOT NULL THEN
        RAISE EXCEPTION 'outcome already recorded';
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE TRIGGER decision_logs_guard
BEFORE UPDATE ON decision_logs
FOR EACH ROW EXECUTE FUNCTION arbiter_decision_logs_guard();

CREATE TABLE IF NOT EXISTS operations_audit (
    id TEXT PRIMARY KEY,
    at TIMESTAMPTZ NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    target TEXT NOT NULL DEFAULT '',
    details JSONB,
    success BOOLEAN NOT NULL,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_operations_audit_at ON operations_audit (at);

CREATE OR REPLACE FUNCTION arbiter_append_only() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE TRIGGER operations_audit_append_only
BEFORE UPDATE OR DELETE ON operations_audit
FOR EACH ROW EXECUTE FUNCTION arbiter_append_only();

CREATE TABLE IF NOT EXISTS report_snapshots (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    period_start TIMESTAMPTZ NOT NULL,
    period_end TIMESTAMPTZ NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL,
    generated_by TEXT NOT NULL DEFAULT '',
    payload BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_report_snapshots_type ON report_snapshots (type, generated_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ DEFAULT NOW()
);
`

const (
	postgresInsertSchemaVersion = `INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT DO NOTHING`
	postgresGetSchemaVersion    = `SELECT MAX(version) FROM schema_version`

	// postgresSchemaLock serializes schema and partition DDL across replicas.
	postgresSchemaLock = 0x61726269746572
)
