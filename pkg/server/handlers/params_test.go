package handlers

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

func TestParseQuery(t *testing.T) {
	values := url.Values{
		"start":           {"2025-03-01"},
		"end":             {"2025-03-31T23:59:59Z"},
		"user_id":         {"u-42"},
		"decision":        {"deny"},
		"policy":          {"payments, privacy", "indigenous"},
		"flag":            {"privacy_act"},
		"classification":  {"restricted,secret"},
		"retention_years": {"10"},
		"limit":           {"25"},
		"offset":          {"50"},
	}

	q, err := ParseQuery(values)
	if err != nil {
		t.Fatalf("ParseQuery() failed: %v", err)
	}
	if !q.Start.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", q.Start)
	}
	if !q.End.Equal(time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("End = %v", q.End)
	}
	if q.UserID != "u-42" || q.Decision != decision.Deny {
		t.Errorf("filters = %q/%q", q.UserID, q.Decision)
	}
	if len(q.PolicyIDs) != 3 || q.PolicyIDs[1] != "privacy" {
		t.Errorf("PolicyIDs = %v, want three trimmed ids", q.PolicyIDs)
	}
	if len(q.Classifications) != 2 || q.Classifications[1] != decision.SensitivitySecret {
		t.Errorf("Classifications = %v", q.Classifications)
	}
	if q.RetentionYears != 10 || q.Limit != 25 || q.Offset != 50 {
		t.Errorf("ints = %d/%d/%d", q.RetentionYears, q.Limit, q.Offset)
	}
}

func TestParseQuery_DateOnlyEndCoversDay(t *testing.T) {
	q, err := ParseQuery(url.Values{"start": {"2026-01-31"}, "end": {"2026-01-31"}})
	if err != nil {
		t.Fatalf("ParseQuery() failed: %v", err)
	}
	lastLog := time.Date(2026, 1, 31, 23, 59, 59, 999999000, time.UTC)
	if q.End.Before(lastLog) {
		t.Errorf("End = %v, want the whole of 2026-01-31", q.End)
	}
	if !q.End.Before(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v, must stay before the next day", q.End)
	}
	if !q.Start.Equal(time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v, want midnight", q.Start)
	}
}

func TestParseQuery_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad start", "start", "last tuesday"},
		{"bad end", "end", "2025-13-01"},
		{"bad limit", "limit", "ten"},
		{"bad tier", "retention_years", "7y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseQuery(url.Values{tt.key: {tt.value}})
			var verr *decision.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *decision.ValidationError", err)
			}
			if verr.Field != tt.key {
				t.Errorf("Field = %q, want %q", verr.Field, tt.key)
			}
		})
	}
}

func TestParseQuery_Empty(t *testing.T) {
	q, err := ParseQuery(url.Values{})
	if err != nil {
		t.Fatalf("ParseQuery() failed: %v", err)
	}
	if !q.Start.IsZero() || q.PolicyIDs != nil {
		t.Errorf("empty values produced %+v", q)
	}
}
