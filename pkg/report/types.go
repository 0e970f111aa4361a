package report

import (
	"fmt"
	"time"

	"mercator-hq/arbiter/pkg/decision"
)

// Type identifies a report shape.
type Type string

const (
	TypeComplianceSummary   Type = "compliance_summary"
	TypeUserActivity        Type = "user_activity"
	TypePolicyEffectiveness Type = "policy_effectiveness"
)

// ParseType validates a report type name.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeComplianceSummary, TypeUserActivity, TypePolicyEffectiveness:
		return t, nil
	}
	return "", fmt.Errorf("unknown report type %q", s)
}

// Suspicious pattern identifiers reported in RiskIndicators.
const (
	PatternHighDenialRate          = "high_denial_rate"
	PatternAfterHoursActivity      = "after_hours_activity"
	PatternFrequentHighSensitivity = "frequent_high_sensitivity_access"
)

// Period is the inclusive time range a report covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Report is implemented by every report shape.
type Report interface {
	ReportType() Type
	ReportPeriod() Period
}

// ComplianceSummary counts decisions per regulatory regime.
type ComplianceSummary struct {
	Period         Period                `json:"period"`
	TotalDecisions int                   `json:"total_decisions"`
	Privacy        PrivacySummary        `json:"privacy"`
	Indigenous     IndigenousSummary     `json:"indigenous"`
	FinancialCrime FinancialCrimeSummary `json:"financial_crime"`
	Residency      ResidencySummary      `json:"residency"`
	Security       SecuritySummary       `json:"security"`
}

// PrivacySummary covers privacy-law applicable decisions.
type PrivacySummary struct {
	Decisions           int `json:"decisions"`
	Denials             int `json:"denials"`
	CrossBorderAttempts int `json:"cross_border_attempts"`
	PersonalDataAccess  int `json:"personal_data_access"`
}

// IndigenousSummary covers decisions touching Indigenous data.
type IndigenousSummary struct {
	Decisions             int `json:"decisions"`
	SacredKnowledgeAccess int `json:"sacred_knowledge_access"`
	TraditionalOwners     int `json:"traditional_owners"`
}

// FinancialCrimeSummary covers decisions reportable for financial crime.
// TotalAmount is in minor currency units.
type FinancialCrimeSummary struct {
	Decisions         int   `json:"decisions"`
	LargeTransactions int   `json:"large_transactions"`
	TotalAmount       int64 `json:"total_amount"`
}

// ResidencySummary splits decisions by where the user was located.
type ResidencySummary struct {
	InCountry  int `json:"in_country"`
	Overseas   int `json:"overseas"`
	Violations int `json:"violations"`
}

// SecuritySummary counts authentication denials and high-sensitivity
// decisions.
type SecuritySummary struct {
	Denials               int `json:"denials"`
	HighSensitivityAccess int `json:"high_sensitivity_access"`
}

func (r *ComplianceSummary) ReportType() Type     { return TypeComplianceSummary }
func (r *ComplianceSummary) ReportPeriod() Period { return r.Period }

// UserActivityReport summarizes activity per user.
type UserActivityReport struct {
	Period     Period         `json:"period"`
	TotalUsers int            `json:"total_users"`
	Users      []UserActivity `json:"users"`
}

// UserActivity is the activity of one user in the period.
type UserActivity struct {
	UserID         string                     `json:"user_id"`
	TotalDecisions int                        `json:"total_decisions"`
	Operations     map[decision.Operation]int `json:"operations"`
	Decisions      map[decision.Outcome]int   `json:"decisions"`
	Compliance     ComplianceActivity         `json:"compliance"`
	FirstSeen      time.Time                  `json:"first_seen"`
	LastSeen       time.Time                  `json:"last_seen"`
	RiskIndicators RiskIndicators             `json:"risk_indicators"`
}

// ComplianceActivity counts a user's compliance-relevant decisions.
type ComplianceActivity struct {
	PrivacyLaw      int `json:"privacy_law"`
	IndigenousData  int `json:"indigenous_data"`
	FinancialCrime  int `json:"financial_crime"`
	CrossBorder     int `json:"cross_border"`
	HighSensitivity int `json:"high_sensitivity"`
}

// RiskIndicators are heuristics; they never fail a report.
type RiskIndicators struct {
	DenialRate         float64  `json:"denial_rate"`
	AfterHoursRate     float64  `json:"after_hours_rate"`
	SuspiciousPatterns []string `json:"suspicious_patterns"`
}

func (r *UserActivityReport) ReportType() Type     { return TypeUserActivity }
func (r *UserActivityReport) ReportPeriod() Period { return r.Period }

// PolicyEffectivenessReport summarizes how policies decided.
type PolicyEffectivenessReport struct {
	Period          Period                  `json:"period"`
	TotalDecisions  int                     `json:"total_decisions"`
	Policies        []PolicyStats           `json:"policies"`
	AllowRate       float64                 `json:"allow_rate"`
	DenyRate        float64                 `json:"deny_rate"`
	ConditionalRate float64                 `json:"conditional_rate"`
	Compliance      ComplianceEffectiveness `json:"compliance"`
}

// PolicyStats are the decisions a single policy took part in.
type PolicyStats struct {
	PolicyID           string  `json:"policy_id"`
	Evaluations        int     `json:"evaluations"`
	Allow              int     `json:"allow"`
	Deny               int     `json:"deny"`
	Conditional        int     `json:"conditional"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
}

// ComplianceEffectiveness is one minus the denial rate among decisions the
// regime applies to.
type ComplianceEffectiveness struct {
	PrivacyLaw     float64 `json:"privacy_law"`
	IndigenousData float64 `json:"indigenous_data"`
}

func (r *PolicyEffectivenessReport) ReportType() Type     { return TypePolicyEffectiveness }
func (r *PolicyEffectivenessReport) ReportPeriod() Period { return r.Period }
