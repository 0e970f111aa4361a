package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
)

// parseTime accepts RFC 3339 timestamps and YYYY-MM-DD dates (UTC
// midnight).
func parseTime(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	return time.Time{}, decision.NewValidationError(field, fmt.Sprintf("invalid time %q", value))
}

// parseEnd parses an inclusive range end. A YYYY-MM-DD date covers the whole
// day, so it maps to the last microsecond before the next UTC midnight.
func parseEnd(field, value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t.AddDate(0, 0, 1).Add(-time.Microsecond), nil
	}
	return parseTime(field, value)
}

func parseInt(field, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, decision.NewValidationError(field, fmt.Sprintf("invalid integer %q", value))
	}
	return n, nil
}

// list collects a repeatable, comma separated parameter.
func list(values url.Values, key string) []string {
	var out []string
	for _, v := range values[key] {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// ParseQuery builds an audit query from URL parameters:
//
//	start, end               RFC 3339 or YYYY-MM-DD, required
//	user_id, operation, decision
//	policy, flag, classification   repeatable or comma separated
//	retention_years, sort_by, sort_order, limit, offset
//
// Range and field validation is left to the query engine.
func ParseQuery(values url.Values) (*audit.Query, error) {
	q := &audit.Query{
		UserID:          values.Get("user_id"),
		Operation:       decision.Operation(values.Get("operation")),
		Decision:        decision.Outcome(values.Get("decision")),
		PolicyIDs:       list(values, "policy"),
		ComplianceFlags: list(values, "flag"),
		SortBy:          values.Get("sort_by"),
		SortOrder:       values.Get("sort_order"),
	}
	for _, c := range list(values, "classification") {
		q.Classifications = append(q.Classifications, decision.Sensitivity(c))
	}

	var err error
	if v := values.Get("start"); v != "" {
		if q.Start, err = parseTime("start", v); err != nil {
			return nil, err
		}
	}
	if v := values.Get("end"); v != "" {
		if q.End, err = parseEnd("end", v); err != nil {
			return nil, err
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"retention_years", &q.RetentionYears},
		{"limit", &q.Limit},
		{"offset", &q.Offset},
	}
	for _, p := range ints {
		if v := values.Get(p.key); v != "" {
			if *p.dst, err = parseInt(p.key, v); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}
