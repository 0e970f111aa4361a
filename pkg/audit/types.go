package audit

import (
	"context"
	"io"
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

// PartitionLayout is the time layout of a DecisionLog partition key.
const PartitionLayout = "2006-01"

// Compliance flags attached to decision logs.
const (
	FlagPrivacyAct       = "privacy_act"
	FlagIndigenousData   = "indigenous_data"
	FlagAUSTRACThreshold = "austrac_threshold"
	FlagCrossBorder      = "cross_border"
	FlagACNCReporting    = "acnc_reporting"
)

// OutcomeResult describes how an executed operation finished.
type OutcomeResult string

const (
	OutcomeSuccess OutcomeResult = "success"
	OutcomeFailure OutcomeResult = "failure"
	OutcomePartial OutcomeResult = "partial"
)

// Outcome records what happened after the decision was acted upon.
// It may be attached to a log exactly once.
type Outcome struct {
	Executed   bool          `json:"executed"`
	ExecutedAt *time.Time    `json:"executed_at,omitempty"`
	Result     OutcomeResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ServiceInfo identifies the service that produced the log.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Metadata is the audit envelope of a decision.
type Metadata struct {
	TraceID            string               `json:"trace_id"`
	SessionID          string               `json:"session_id,omitempty"`
	UserID             string               `json:"user_id"`
	UserRoles          []string             `json:"user_roles,omitempty"`
	Service            ServiceInfo          `json:"service"`
	ComplianceFlags    []string             `json:"compliance_flags"`
	DataClassification decision.Sensitivity `json:"data_classification"`
	RetentionYears     int                  `json:"retention_years"`
}

// HasFlag reports whether flag is attached.
func (m *Metadata) HasFlag(flag string) bool {
	for _, f := range m.ComplianceFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// ComplianceSummary lists which regulatory regimes apply to a decision.
type ComplianceSummary struct {
	PrivacyLawApplicable              bool `json:"privacy_law_applicable"`
	CharityReportingApplicable        bool `json:"charity_reporting_applicable"`
	FinancialCrimeReportingApplicable bool `json:"financial_crime_reporting_applicable"`
	IndigenousDataInvolved            bool `json:"indigenous_data_involved"`
}

// DecisionLog is the immutable audit record of one decision. Logs are never
// deleted individually; they are removed only by bulk retention purge.
type DecisionLog struct {
	ID         string                   `json:"id"`
	Timestamp  time.Time                `json:"timestamp"`
	Intent     decision.FinancialIntent `json:"intent"`
	Decision   decision.PolicyDecision  `json:"decision"`
	Outcome    *Outcome                 `json:"outcome,omitempty"`
	Audit      Metadata                 `json:"audit"`
	Compliance ComplianceSummary        `json:"compliance"`

	// Hash is the keyed integrity hash over the identifying fields.
	Hash string `json:"hash"`

	// Partition is the month bucket (YYYY-MM) the log is stored in.
	Partition string `json:"partition"`

	// Sealed holds encrypted copies of sensitive fields. While a log is at
	// rest the plaintext fields are blanked.
	Sealed map[string]string `json:"sealed,omitempty"`
}

// PartitionFor returns the partition key for t.
func PartitionFor(t time.Time) string {
	return t.UTC().Format(PartitionLayout)
}

// Query filters decision logs. Storage backends accept zero Start/End to
// mean unbounded; the audit query engine requires both.
type Query struct {
	Start time.Time
	End   time.Time

	UserID    string
	Operation decision.Operation
	Decision  decision.Outcome

	// PolicyIDs matches logs that evaluated any of the listed policies.
	PolicyIDs []string

	// ComplianceFlags matches logs carrying all of the listed flags.
	ComplianceFlags []string

	// Classifications matches logs with any of the listed classifications.
	Classifications []decision.Sensitivity

	// RetentionYears restricts to one retention tier when non-zero.
	RetentionYears int

	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// Sortable columns.
const (
	SortTimestamp      = "timestamp"
	SortUserID         = "user_id"
	SortOperation      = "operation"
	SortDecision       = "decision"
	SortRetentionYears = "retention_years"
	SortEvaluationTime = "evaluation_time_ms"
)

// ValidSortFields lists the columns logs can be ordered by.
var ValidSortFields = map[string]bool{
	SortTimestamp:      true,
	SortUserID:         true,
	SortOperation:      true,
	SortDecision:       true,
	SortRetentionYears: true,
	SortEvaluationTime: true,
}

// OperationRecord is an append-only entry describing an administrative
// action (policy change, purge, report generation).
type OperationRecord struct {
	ID      string            `json:"id"`
	At      time.Time         `json:"at"`
	Actor   string            `json:"actor"`
	Action  string            `json:"action"`
	Target  string            `json:"target,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
}

// Administrative actions.
const (
	ActionLoadPolicy    = "policy.load"
	ActionRemovePolicy  = "policy.remove"
	ActionPurge         = "logs.purge"
	ActionReport        = "report.generate"
	ActionRecordOutcome = "log.outcome"
	ActionClearCache    = "cache.clear"
	ActionVerify        = "logs.verify"
)

// ReportSnapshot is a persisted, generated report.
type ReportSnapshot struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	GeneratedAt time.Time `json:"generated_at"`
	GeneratedBy string    `json:"generated_by"`
	Payload     []byte    `json:"payload"`
}

// Storage persists decision logs.
type Storage interface {
	// Store persists a single log.
	Store(ctx context.Context, log *DecisionLog) error

	// StoreBatch persists logs atomically: all or none.
	StoreBatch(ctx context.Context, logs []*DecisionLog) error

	// Get returns the log with id or ErrNotFound.
	Get(ctx context.Context, id string) (*DecisionLog, error)

	// Query returns logs matching q, sorted and paginated.
	Query(ctx context.Context, q *Query) ([]*DecisionLog, error)

	// QueryStream streams logs matching q. Both channels close when done.
	QueryStream(ctx context.Context, q *Query) (<-chan *DecisionLog, <-chan error, error)

	// Count returns the number of logs matching q, ignoring pagination.
	Count(ctx context.Context, q *Query) (int64, error)

	// SetOutcome attaches an outcome once. A second call returns
	// ErrOutcomeAlreadySet.
	SetOutcome(ctx context.Context, id string, outcome *Outcome) error

	// Tiers returns the distinct retention tiers present in storage.
	Tiers(ctx context.Context) ([]int, error)

	// Purge removes every log in tier retentionYears older than cutoff in
	// one transaction and returns the number removed.
	Purge(ctx context.Context, retentionYears int, cutoff time.Time) (int64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// OperationsStore persists administrative audit entries and report
// snapshots.
type OperationsStore interface {
	AppendOperation(ctx context.Context, op *OperationRecord) error
	ListOperations(ctx context.Context, since time.Time, limit int) ([]*OperationRecord, error)
	SaveReport(ctx context.Context, snapshot *ReportSnapshot) error
	ListReports(ctx context.Context, reportType string, limit int) ([]*ReportSnapshot, error)
}

// Backend is a storage implementation providing both stores.
type Backend interface {
	Storage
	OperationsStore
}

// Exporter writes logs in an external format.
type Exporter interface {
	Export(ctx context.Context, logs []*DecisionLog, w io.Writer) error
	ExportStream(ctx context.Context, logs <-chan *DecisionLog, w io.Writer) error
	Format() string
}
