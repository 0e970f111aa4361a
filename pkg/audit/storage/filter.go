package storage

import (
	"encoding/json"
	"sort"
	"strings"

	"mercator-hq/arbiter/pkg/audit"
)

// matches reports whether log satisfies every filter in q.
func matches(log *audit.DecisionLog, q *audit.Query) bool {
	if !q.Start.IsZero() && log.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && log.Timestamp.After(q.End) {
		return false
	}
	if q.UserID != "" && log.Intent.User.ID != q.UserID {
		return false
	}
	if q.Operation != "" && log.Intent.Operation != q.Operation {
		return false
	}
	if q.Decision != "" && log.Decision.Decision != q.Decision {
		return false
	}
	if q.RetentionYears != 0 && log.Audit.RetentionYears != q.RetentionYears {
		return false
	}
	if len(q.PolicyIDs) > 0 && !containsAny(log.Decision.EvaluatedPolicies, q.PolicyIDs) {
		return false
	}
	for _, flag := range q.ComplianceFlags {
		if !log.Audit.HasFlag(flag) {
			return false
		}
	}
	if len(q.Classifications) > 0 {
		found := false
		for _, c := range q.Classifications {
			if log.Audit.DataClassification == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// sortLogs orders logs by q.SortBy and q.SortOrder, breaking ties by id.
func sortLogs(logs []*audit.DecisionLog, q *audit.Query) {
	field := q.SortBy
	if field == "" {
		field = audit.SortTimestamp
	}
	desc := !strings.EqualFold(q.SortOrder, "asc")

	less := func(a, b *audit.DecisionLog) int {
		switch field {
		case audit.SortUserID:
			return strings.Compare(a.Intent.User.ID, b.Intent.User.ID)
		case audit.SortOperation:
			return strings.Compare(string(a.Intent.Operation), string(b.Intent.Operation))
		case audit.SortDecision:
			return strings.Compare(string(a.Decision.Decision), string(b.Decision.Decision))
		case audit.SortRetentionYears:
			return a.Audit.RetentionYears - b.Audit.RetentionYears
		case audit.SortEvaluationTime:
			switch {
			case a.Decision.Performance.EvaluationTimeMs < b.Decision.Performance.EvaluationTimeMs:
				return -1
			case a.Decision.Performance.EvaluationTimeMs > b.Decision.Performance.EvaluationTimeMs:
				return 1
			}
			return 0
		default:
			return a.Timestamp.Compare(b.Timestamp)
		}
	}

	sort.SliceStable(logs, func(i, j int) bool {
		c := less(logs[i], logs[j])
		if c == 0 {
			c = strings.Compare(logs[i].ID, logs[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// paginate applies q.Offset and q.Limit. A zero limit returns everything
// after the offset.
func paginate(logs []*audit.DecisionLog, q *audit.Query) []*audit.DecisionLog {
	if q.Offset >= len(logs) {
		return []*audit.DecisionLog{}
	}
	logs = logs[q.Offset:]
	if q.Limit > 0 && q.Limit < len(logs) {
		logs = logs[:q.Limit]
	}
	return logs
}

// cloneLog deep-copies a log through its JSON form.
func cloneLog(log *audit.DecisionLog) *audit.DecisionLog {
	data, err := json.Marshal(log)
	if err != nil {
		panic("storage: clone decision log: " + err.Error())
	}
	var out audit.DecisionLog
	if err := json.Unmarshal(data, &out); err != nil {
		panic("storage: clone decision log: " + err.Error())
	}
	return &out
}

// sortColumn maps a sort field to its SQL column.
func sortColumn(field string) string {
	switch field {
	case audit.SortUserID, audit.SortOperation, audit.SortDecision,
		audit.SortRetentionYears, audit.SortEvaluationTime:
		return field
	default:
		return "ts"
	}
}

// sortDirection normalizes a sort order to ASC or DESC.
func sortDirection(order string) string {
	if strings.EqualFold(order, "asc") {
		return "ASC"
	}
	return "DESC"
}

// classificationStrings converts classifications for SQL binding.
func classificationStrings(q *audit.Query) []string {
	out := make([]string, len(q.Classifications))
	for i, c := range q.Classifications {
		out[i] = string(c)
	}
	return out
}
