package main

import (
	"strconv"
	"strings"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/retention"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/engine"
	"mercator-hq/arbiter/pkg/policy/manager"
)

type evaluationTable struct {
	intents []*decision.FinancialIntent
	results []engine.BatchResult
}

func (t evaluationTable) Header() []string {
	return []string{"INTENT", "DECISION", "SOURCE", "LOG", "REASON"}
}

func (t evaluationTable) Rows() [][]string {
	rows := make([][]string, len(t.results))
	for i, r := range t.results {
		id := t.intents[i].ID
		if r.Err != nil {
			rows[i] = []string{id, "error", "", "", r.Err.Error()}
			continue
		}
		d := r.Result.Decision
		reason := d.Reason
		for _, c := range d.Conditions {
			reason += "; " + string(c.Type) + ": " + c.Description
		}
		rows[i] = []string{id, string(d.Decision), r.Result.Source, r.Result.LogID, reason}
	}
	return rows
}

func (t evaluationTable) JSON() []evaluationJSON {
	out := make([]evaluationJSON, len(t.results))
	for i, r := range t.results {
		out[i] = evaluationJSON{IntentID: t.intents[i].ID, Result: r.Result}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

type logTable []*audit.DecisionLog

func (t logTable) Header() []string {
	return []string{"ID", "TIMESTAMP", "USER", "OPERATION", "DECISION", "RETENTION", "FLAGS"}
}

func (t logTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, log := range t {
		rows[i] = []string{
			log.ID,
			log.Timestamp.UTC().Format(time.RFC3339),
			log.Intent.User.ID,
			string(log.Intent.Operation),
			string(log.Decision.Decision),
			strconv.Itoa(log.Audit.RetentionYears) + "y",
			strings.Join(log.Audit.ComplianceFlags, ","),
		}
	}
	return rows
}

type purgeTable struct{ *retention.Result }

func (t purgeTable) Header() []string {
	return []string{"TIER", "CUTOFF", "DELETED", "ARCHIVED", "ERROR"}
}

func (t purgeTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Tiers)+1)
	for _, tier := range t.Tiers {
		rows = append(rows, []string{
			strconv.Itoa(tier.RetentionYears) + "y",
			tier.Cutoff.UTC().Format(time.RFC3339),
			strconv.FormatInt(tier.Deleted, 10),
			strconv.Itoa(tier.Archived),
			tier.Error,
		})
	}
	rows = append(rows, []string{"total", "", strconv.FormatInt(t.TotalDeleted, 10), "", ""})
	return rows
}

type documentTable []manager.Document

func (t documentTable) Header() []string {
	return []string{"ID", "VERSION", "PATH"}
}

func (t documentTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, doc := range t {
		rows[i] = []string{doc.ID, doc.Version, doc.Path}
	}
	return rows
}
