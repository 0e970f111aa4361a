package audit

import (
	"fmt"
	"sort"
	"time"
)

// Default retention periods in years.
const (
	DefaultStandardYears   = 7
	DefaultPrivacyYears    = 10
	DefaultIndigenousYears = 50
)

// RetentionPolicy maps compliance context to a retention period. The same
// policy value is used when a log is written and when it is purged, so the
// tier recorded on a log is always the tier that governs its deletion.
type RetentionPolicy struct {
	StandardYears   int `yaml:"standard_years"`
	PrivacyYears    int `yaml:"privacy_years"`
	IndigenousYears int `yaml:"indigenous_years"`
}

// DefaultRetentionPolicy returns 7/10/50 years.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		StandardYears:   DefaultStandardYears,
		PrivacyYears:    DefaultPrivacyYears,
		IndigenousYears: DefaultIndigenousYears,
	}
}

// YearsFor returns the retention period for a decision with the given
// compliance summary. Indigenous data outranks privacy law, which outranks
// the standard period.
func (p RetentionPolicy) YearsFor(c ComplianceSummary) int {
	switch {
	case c.IndigenousDataInvolved:
		return p.IndigenousYears
	case c.PrivacyLawApplicable:
		return p.PrivacyYears
	default:
		return p.StandardYears
	}
}

// Tiers returns the distinct configured periods in ascending order.
func (p RetentionPolicy) Tiers() []int {
	seen := map[int]bool{}
	var tiers []int
	for _, y := range []int{p.StandardYears, p.PrivacyYears, p.IndigenousYears} {
		if !seen[y] {
			seen[y] = true
			tiers = append(tiers, y)
		}
	}
	sort.Ints(tiers)
	return tiers
}

// Cutoff returns the instant before which logs in tier years are expired.
func Cutoff(now time.Time, years int) time.Time {
	return now.AddDate(-years, 0, 0)
}

// Validate checks that the periods are positive and correctly ordered.
func (p RetentionPolicy) Validate() error {
	if p.StandardYears <= 0 || p.PrivacyYears <= 0 || p.IndigenousYears <= 0 {
		return fmt.Errorf("retention periods must be positive")
	}
	if p.PrivacyYears < p.StandardYears {
		return fmt.Errorf("privacy retention (%d) must be at least standard retention (%d)", p.PrivacyYears, p.StandardYears)
	}
	if p.IndigenousYears < p.PrivacyYears {
		return fmt.Errorf("indigenous retention (%d) must be at least privacy retention (%d)", p.IndigenousYears, p.PrivacyYears)
	}
	return nil
}
