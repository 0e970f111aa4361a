package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/decision/decisiontest"
)

var base = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// newLog builds a stored-form decision log for backend tests.
func newLog(id, user string, ts time.Time, outcome decision.Outcome, years int) *audit.DecisionLog {
	intent := decisiontest.NewIntent(id)
	intent.User.ID = user
	intent.Request.Timestamp = ts
	return &audit.DecisionLog{
		ID:        id,
		Timestamp: ts,
		Intent:    *intent,
		Decision: decision.PolicyDecision{
			Decision:          outcome,
			EvaluatedPolicies: []string{"payments"},
			Reason:            "test",
			Performance:       decision.Performance{EvaluationTimeMs: 1.5},
		},
		Audit: audit.Metadata{
			TraceID:            "trace-" + id,
			UserID:             user,
			ComplianceFlags:    []string{},
			DataClassification: decision.SensitivityConfidential,
			RetentionYears:     years,
		},
		Hash:      "hash-" + id,
		Partition: audit.PartitionFor(ts),
	}
}

// runBackendSuite exercises the audit.Backend contract against b.
func runBackendSuite(t *testing.T, b audit.Backend) {
	ctx := context.Background()

	logs := []*audit.DecisionLog{
		newLog("log-1", "alice", base, decision.Allow, 7),
		newLog("log-2", "alice", base.Add(time.Hour), decision.Deny, 7),
		newLog("log-3", "bob", base.Add(2*time.Hour), decision.Allow, 10),
		newLog("log-4", "carol", base.Add(3*time.Hour), decision.Conditional, 50),
	}
	logs[2].Audit.ComplianceFlags = []string{audit.FlagPrivacyAct, audit.FlagCrossBorder}
	logs[3].Audit.ComplianceFlags = []string{audit.FlagIndigenousData, audit.FlagPrivacyAct}
	logs[3].Decision.EvaluatedPolicies = []string{"indigenous", "payments"}
	logs[3].Audit.DataClassification = decision.SensitivityRestricted
	logs[3].Decision.Performance.EvaluationTimeMs = 9

	if err := b.StoreBatch(ctx, logs); err != nil {
		t.Fatalf("StoreBatch() failed: %v", err)
	}

	t.Run("Get", func(t *testing.T) {
		got, err := b.Get(ctx, "log-3")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Intent.User.ID != "bob" || got.Hash != "hash-log-3" {
			t.Errorf("Get() returned wrong log: %+v", got.Audit)
		}
		if !got.Timestamp.Equal(logs[2].Timestamp) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, logs[2].Timestamp)
		}
		if _, err := b.Get(ctx, "missing"); !errors.Is(err, audit.ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("duplicate batch is rejected atomically", func(t *testing.T) {
		batch := []*audit.DecisionLog{
			newLog("log-5", "dave", base, decision.Allow, 7),
			newLog("log-1", "alice", base, decision.Allow, 7),
		}
		if err := b.StoreBatch(ctx, batch); err == nil {
			t.Fatal("StoreBatch() with duplicate id should fail")
		}
		if _, err := b.Get(ctx, "log-5"); !errors.Is(err, audit.ErrNotFound) {
			t.Errorf("partial batch was persisted: %v", err)
		}
	})

	tests := []struct {
		name  string
		query audit.Query
		want  []string
	}{
		{"all newest first", audit.Query{}, []string{"log-4", "log-3", "log-2", "log-1"}},
		{"ascending", audit.Query{SortOrder: "asc"}, []string{"log-1", "log-2", "log-3", "log-4"}},
		{"inclusive range", audit.Query{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}, []string{"log-3", "log-2"}},
		{"user", audit.Query{UserID: "alice"}, []string{"log-2", "log-1"}},
		{"decision", audit.Query{Decision: decision.Deny}, []string{"log-2"}},
		{"policy any", audit.Query{PolicyIDs: []string{"indigenous", "other"}}, []string{"log-4"}},
		{"flags all", audit.Query{ComplianceFlags: []string{audit.FlagPrivacyAct, audit.FlagCrossBorder}}, []string{"log-3"}},
		{"flags single", audit.Query{ComplianceFlags: []string{audit.FlagPrivacyAct}}, []string{"log-4", "log-3"}},
		{"classification", audit.Query{Classifications: []decision.Sensitivity{decision.SensitivityRestricted, decision.SensitivitySecret}}, []string{"log-4"}},
		{"tier", audit.Query{RetentionYears: 7}, []string{"log-2", "log-1"}},
		{"pagination", audit.Query{Limit: 2, Offset: 1}, []string{"log-3", "log-2"}},
		{"offset past end", audit.Query{Offset: 10}, []string{}},
		{"sort by evaluation time", audit.Query{SortBy: audit.SortEvaluationTime, Limit: 1}, []string{"log-4"}},
		{"sort by user asc", audit.Query{SortBy: audit.SortUserID, SortOrder: "asc"}, []string{"log-1", "log-2", "log-3", "log-4"}},
	}

	for _, tt := range tests {
		t.Run("Query "+tt.name, func(t *testing.T) {
			got, err := b.Query(ctx, &tt.query)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Query() returned %d logs, want %d (%v)", len(got), len(tt.want), ids(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Query()[%d] = %s, want %s (all: %v)", i, got[i].ID, id, ids(got))
				}
			}

			count, err := b.Count(ctx, &audit.Query{
				Start: tt.query.Start, End: tt.query.End, UserID: tt.query.UserID,
				Decision: tt.query.Decision, PolicyIDs: tt.query.PolicyIDs,
				ComplianceFlags: tt.query.ComplianceFlags, Classifications: tt.query.Classifications,
				RetentionYears: tt.query.RetentionYears,
			})
			if err != nil {
				t.Fatalf("Count() failed: %v", err)
			}
			if tt.query.Limit == 0 && tt.query.Offset == 0 && count != int64(len(tt.want)) {
				t.Errorf("Count() = %d, want %d", count, len(tt.want))
			}
		})
	}

	t.Run("QueryStream", func(t *testing.T) {
		logsCh, errCh, err := b.QueryStream(ctx, &audit.Query{UserID: "alice"})
		if err != nil {
			t.Fatalf("QueryStream() failed: %v", err)
		}
		var got []string
		for log := range logsCh {
			got = append(got, log.ID)
		}
		if err := <-errCh; err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("streamed %v, want 2 logs", got)
		}
	})

	t.Run("SetOutcome once", func(t *testing.T) {
		at := base.Add(time.Minute)
		outcome := &audit.Outcome{Executed: true, ExecutedAt: &at, Result: audit.OutcomeSuccess}
		if err := b.SetOutcome(ctx, "log-1", outcome); err != nil {
			t.Fatalf("SetOutcome() failed: %v", err)
		}
		if err := b.SetOutcome(ctx, "log-1", outcome); !errors.Is(err, audit.ErrOutcomeAlreadySet) {
			t.Errorf("second SetOutcome() error = %v, want ErrOutcomeAlreadySet", err)
		}
		if err := b.SetOutcome(ctx, "missing", outcome); !errors.Is(err, audit.ErrNotFound) {
			t.Errorf("SetOutcome(missing) error = %v, want ErrNotFound", err)
		}
		got, err := b.Get(ctx, "log-1")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Outcome == nil || got.Outcome.Result != audit.OutcomeSuccess {
			t.Errorf("Outcome = %+v, want success", got.Outcome)
		}
	})

	t.Run("Tiers", func(t *testing.T) {
		tiers, err := b.Tiers(ctx)
		if err != nil {
			t.Fatalf("Tiers() failed: %v", err)
		}
		if len(tiers) != 3 || tiers[0] != 7 || tiers[1] != 10 || tiers[2] != 50 {
			t.Errorf("Tiers() = %v, want [7 10 50]", tiers)
		}
	})

	t.Run("Purge only touches its tier", func(t *testing.T) {
		n, err := b.Purge(ctx, 7, base.Add(30*time.Minute))
		if err != nil {
			t.Fatalf("Purge() failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Purge() removed %d, want 1", n)
		}
		if _, err := b.Get(ctx, "log-1"); !errors.Is(err, audit.ErrNotFound) {
			t.Errorf("log-1 should be purged, got %v", err)
		}
		n, err = b.Purge(ctx, 10, base)
		if err != nil {
			t.Fatalf("Purge() failed: %v", err)
		}
		if n != 0 {
			t.Errorf("Purge() before oldest log removed %d, want 0", n)
		}
		remaining, _ := b.Count(ctx, &audit.Query{})
		if remaining != 3 {
			t.Errorf("remaining = %d, want 3", remaining)
		}
	})

	t.Run("operations audit", func(t *testing.T) {
		for i, action := range []string{audit.ActionLoadPolicy, audit.ActionPurge} {
			op := &audit.OperationRecord{
				ID:      action,
				At:      base.Add(time.Duration(i) * time.Minute),
				Actor:   "admin",
				Action:  action,
				Target:  "payments",
				Details: map[string]string{"n": "1"},
				Success: true,
			}
			if err := b.AppendOperation(ctx, op); err != nil {
				t.Fatalf("AppendOperation() failed: %v", err)
			}
		}
		ops, err := b.ListOperations(ctx, base, 10)
		if err != nil {
			t.Fatalf("ListOperations() failed: %v", err)
		}
		if len(ops) != 2 || ops[0].Action != audit.ActionPurge {
			t.Fatalf("ListOperations() = %+v, want newest first", ops)
		}
		if ops[1].Details["n"] != "1" || !ops[1].Success {
			t.Errorf("operation not round-tripped: %+v", ops[1])
		}
	})

	t.Run("report snapshots", func(t *testing.T) {
		for i, typ := range []string{"compliance_summary", "user_activity", "compliance_summary"} {
			r := &audit.ReportSnapshot{
				ID:          typ + string(rune('a'+i)),
				Type:        typ,
				PeriodStart: base,
				PeriodEnd:   base.Add(24 * time.Hour),
				GeneratedAt: base.Add(time.Duration(i) * time.Minute),
				Payload:     []byte(`{"total":1}`),
			}
			if err := b.SaveReport(ctx, r); err != nil {
				t.Fatalf("SaveReport() failed: %v", err)
			}
		}
		reports, err := b.ListReports(ctx, "compliance_summary", 10)
		if err != nil {
			t.Fatalf("ListReports() failed: %v", err)
		}
		if len(reports) != 2 || reports[0].ID != "compliance_summaryc" {
			t.Errorf("ListReports() = %d reports, want 2 newest first", len(reports))
		}
		if string(reports[0].Payload) != `{"total":1}` {
			t.Errorf("Payload = %s", reports[0].Payload)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := b.Ping(ctx); err != nil {
			t.Errorf("Ping() failed: %v", err)
		}
	})
}

func ids(logs []*audit.DecisionLog) []string {
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.ID
	}
	return out
}
