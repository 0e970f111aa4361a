package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/arbiter/pkg/audit"
)

// CSVExporter exports decision logs as flat CSV rows. Nested intent data
// is reduced to the columns compliance reviewers filter on.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Format implements audit.Exporter.
func (e *CSVExporter) Format() string { return "csv" }

// Header is the CSV column order.
var Header = []string{
	"id", "timestamp", "partition", "user_id", "user_roles", "operation",
	"amount", "currency", "sensitivity", "decision", "reason",
	"evaluated_policies", "evaluation_time_ms", "cache_hit",
	"compliance_flags", "retention_years", "trace_id", "session_id",
	"outcome_result", "outcome_executed_at", "hash",
}

// Export writes logs as CSV.
func (e *CSVExporter) Export(ctx context.Context, logs []*audit.DecisionLog, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return audit.NewExportError("csv", len(logs), err)
		}
	}
	for _, log := range logs {
		if err := writer.Write(Row(log)); err != nil {
			return audit.NewExportError("csv", len(logs), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError("csv", len(logs), err)
	}
	return nil
}

// ExportStream writes logs from a channel as CSV, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, logsCh <-chan *audit.DecisionLog, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return audit.NewExportError("csv", 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case log, ok := <-logsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
				return nil
			}

			if err := writer.Write(Row(log)); err != nil {
				return audit.NewExportError("csv", count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return audit.NewExportError("csv", count, err)
				}
			}
		}
	}
}

// Row flattens one log into Header order.
func Row(log *audit.DecisionLog) []string {
	var result, executedAt string
	if log.Outcome != nil {
		result = string(log.Outcome.Result)
		if log.Outcome.ExecutedAt != nil {
			executedAt = log.Outcome.ExecutedAt.UTC().Format(time.RFC3339Nano)
		}
	}

	return []string{
		log.ID,
		log.Timestamp.UTC().Format(time.RFC3339Nano),
		log.Partition,
		log.Intent.User.ID,
		strings.Join(log.Intent.User.Roles, ";"),
		string(log.Intent.Operation),
		strconv.FormatInt(log.Intent.Financial.Amount, 10),
		log.Intent.Financial.Currency,
		string(log.Intent.Financial.Sensitivity),
		string(log.Decision.Decision),
		log.Decision.Reason,
		strings.Join(log.Decision.EvaluatedPolicies, ";"),
		strconv.FormatFloat(log.Decision.Performance.EvaluationTimeMs, 'f', 3, 64),
		strconv.FormatBool(log.Decision.Performance.CacheHit),
		strings.Join(log.Audit.ComplianceFlags, ";"),
		strconv.Itoa(log.Audit.RetentionYears),
		log.Audit.TraceID,
		log.Audit.SessionID,
		result,
		executedAt,
		log.Hash,
	}
}

// ForFormat returns the exporter for "json" or "csv".
func ForFormat(format string, pretty bool) (audit.Exporter, bool) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONExporter(pretty), true
	case "csv":
		return NewCSVExporter(true), true
	default:
		return nil, false
	}
}
