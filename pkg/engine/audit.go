package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/query"
	"mercator-hq/arbiter/pkg/report"
	"mercator-hq/arbiter/pkg/telemetry/metrics"
)

// Query returns one page of verified, decrypted decision logs. A query
// without a time range fails with a validation error before storage is
// touched.
func (e *Engine) Query(ctx context.Context, q *audit.Query) (*query.Result, error) {
	start := time.Now()
	res, err := e.queries.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordQuery(time.Since(start), len(res.Logs))
	if res.Performance.CacheHit {
		e.metrics.RecordCacheHit(metrics.CacheQuery)
	} else {
		e.metrics.RecordCacheMiss(metrics.CacheQuery)
	}
	return res, nil
}

// GetLog returns one verified, decrypted decision log.
func (e *Engine) GetLog(ctx context.Context, id string) (*audit.DecisionLog, error) {
	return e.queries.Get(ctx, id)
}

// StreamLogs returns every log matching q, ignoring pagination. Used for
// exports.
func (e *Engine) StreamLogs(ctx context.Context, q *audit.Query) (<-chan *audit.DecisionLog, <-chan error, error) {
	return e.queries.Stream(ctx, q)
}

// VerifyLogs checks the integrity of every log matching q and reports each
// failing log. The run is recorded in the operations audit.
func (e *Engine) VerifyLogs(ctx context.Context, q *audit.Query) (*query.Verification, error) {
	res, err := e.queries.Verify(ctx, q)
	details := map[string]string{}
	if res != nil {
		details["checked"] = fmt.Sprint(res.Checked)
		details["violations"] = fmt.Sprint(len(res.Violations))
	}
	e.recordOperation(ctx, audit.ActionVerify, "", details, err)
	return res, err
}

// GetComplianceReport generates a report of type t over the inclusive
// period. When snapshots are enabled the report is stored and listable
// through ListReports.
func (e *Engine) GetComplianceReport(ctx context.Context, t report.Type, period report.Period) (report.Report, error) {
	if _, err := report.ParseType(string(t)); err != nil {
		return nil, err
	}

	rep, err := e.generateReport(ctx, t, period)
	e.recordOperation(ctx, audit.ActionReport, string(t), map[string]string{
		"period_start": period.Start.UTC().Format(time.RFC3339),
		"period_end":   period.End.UTC().Format(time.RFC3339),
	}, err)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordReport(string(t))
	return rep, nil
}

func (e *Engine) generateReport(ctx context.Context, t report.Type, period report.Period) (report.Report, error) {
	logs, errCh, err := e.queries.Stream(ctx, &audit.Query{Start: period.Start, End: period.End})
	if err != nil {
		return nil, err
	}

	var collected []*audit.DecisionLog
	for log := range logs {
		collected = append(collected, log)
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("read decision logs: %w", err)
	}

	rep, err := e.reports.Generate(t, period, collected)
	if err != nil {
		return nil, err
	}

	if e.config.SaveReportSnapshots {
		payload, err := json.Marshal(rep)
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		snap := &audit.ReportSnapshot{
			ID:          uuid.NewString(),
			Type:        string(t),
			PeriodStart: period.Start.UTC(),
			PeriodEnd:   period.End.UTC(),
			GeneratedAt: e.now().UTC(),
			GeneratedBy: actor(ctx),
			Payload:     payload,
		}
		if err := e.storage.SaveReport(ctx, snap); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// ListReports returns stored report snapshots of type t, newest first. An
// empty type lists every type.
func (e *Engine) ListReports(ctx context.Context, t string, limit int) ([]*audit.ReportSnapshot, error) {
	return e.storage.ListReports(ctx, t, limit)
}

// ListOperations returns operations audit records since the given time,
// newest first.
func (e *Engine) ListOperations(ctx context.Context, since time.Time, limit int) ([]*audit.OperationRecord, error) {
	return e.storage.ListOperations(ctx, since, limit)
}
