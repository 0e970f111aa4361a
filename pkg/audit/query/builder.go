package query

import (
	"time"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
)

// Builder composes an audit.Query. Shortcuts only add filters; Build still
// validates the result, so a builder without a time range fails.
type Builder struct {
	q   audit.Query
	now func() time.Time
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// WithClock sets the clock used by RecentActivity.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Between sets an inclusive time range.
func (b *Builder) Between(start, end time.Time) *Builder {
	b.q.Start, b.q.End = start, end
	return b
}

// RecentActivity limits the query to the last window.
func (b *Builder) RecentActivity(window time.Duration) *Builder {
	end := b.now().UTC()
	return b.Between(end.Add(-window), end)
}

// ForUser filters by user id.
func (b *Builder) ForUser(userID string) *Builder {
	b.q.UserID = userID
	return b
}

// ForOperation filters by operation.
func (b *Builder) ForOperation(op decision.Operation) *Builder {
	b.q.Operation = op
	return b
}

// WithDecision filters by outcome.
func (b *Builder) WithDecision(d decision.Outcome) *Builder {
	b.q.Decision = d
	return b
}

// DeniedOnly keeps denials.
func (b *Builder) DeniedOnly() *Builder {
	return b.WithDecision(decision.Deny)
}

// WithPolicies keeps logs that evaluated any of ids.
func (b *Builder) WithPolicies(ids ...string) *Builder {
	b.q.PolicyIDs = append(b.q.PolicyIDs, ids...)
	return b
}

// WithFlags keeps logs carrying all of flags.
func (b *Builder) WithFlags(flags ...string) *Builder {
	for _, f := range flags {
		if !contains(b.q.ComplianceFlags, f) {
			b.q.ComplianceFlags = append(b.q.ComplianceFlags, f)
		}
	}
	return b
}

// PrivacyLawOnly keeps decisions subject to privacy law.
func (b *Builder) PrivacyLawOnly() *Builder {
	return b.WithFlags(audit.FlagPrivacyAct)
}

// IndigenousDataOnly keeps decisions involving Indigenous data.
func (b *Builder) IndigenousDataOnly() *Builder {
	return b.WithFlags(audit.FlagIndigenousData)
}

// CrossBorderOnly keeps decisions involving cross-border transfers.
func (b *Builder) CrossBorderOnly() *Builder {
	return b.WithFlags(audit.FlagCrossBorder)
}

// WithClassifications keeps logs with any of the classifications.
func (b *Builder) WithClassifications(cs ...decision.Sensitivity) *Builder {
	b.q.Classifications = append(b.q.Classifications, cs...)
	return b
}

// HighSensitivityOnly keeps restricted and secret data access.
func (b *Builder) HighSensitivityOnly() *Builder {
	return b.WithClassifications(decision.SensitivityRestricted, decision.SensitivitySecret)
}

// InTier restricts to one retention tier.
func (b *Builder) InTier(years int) *Builder {
	b.q.RetentionYears = years
	return b
}

// SortBy sets ordering.
func (b *Builder) SortBy(field, order string) *Builder {
	b.q.SortBy, b.q.SortOrder = field, order
	return b
}

// Page sets pagination.
func (b *Builder) Page(offset, limit int) *Builder {
	b.q.Offset, b.q.Limit = offset, limit
	return b
}

// Build validates and returns a copy of the query.
func (b *Builder) Build() (*audit.Query, error) {
	q := b.q
	q.PolicyIDs = append([]string(nil), b.q.PolicyIDs...)
	q.ComplianceFlags = append([]string(nil), b.q.ComplianceFlags...)
	q.Classifications = append([]decision.Sensitivity(nil), b.q.Classifications...)
	if err := Validate(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
