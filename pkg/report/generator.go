package report

import (
	"fmt"
	"sort"
	"time"

	_ "time/tzdata"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/decision/precheck"
)

// DefaultTimezone is the business-hours timezone.
const DefaultTimezone = "Australia/Sydney"

// Config controls the report heuristics.
type Config struct {
	// Location is the timezone business hours are measured in.
	Location *time.Location

	// BusinessHourStart and BusinessHourEnd bound business hours
	// [start, end) on weekdays.
	BusinessHourStart int
	BusinessHourEnd   int

	// DenialRateThreshold flags users whose denial rate exceeds it.
	DenialRateThreshold float64

	// AfterHoursRateThreshold flags users whose after-hours rate exceeds it.
	AfterHoursRateThreshold float64

	// HighSensitivityThreshold flags users with at least this many
	// restricted or secret decisions.
	HighSensitivityThreshold int

	// ApprovedJurisdiction is the in-country jurisdiction code.
	ApprovedJurisdiction string
}

// DefaultConfig returns the default report configuration.
func DefaultConfig() Config {
	return Config{
		Location:                 LoadLocation(DefaultTimezone),
		BusinessHourStart:        9,
		BusinessHourEnd:          17,
		DenialRateThreshold:      0.20,
		AfterHoursRateThreshold:  0.30,
		HighSensitivityThreshold: 10,
		ApprovedJurisdiction:     "AU",
	}
}

// LoadLocation loads name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Generator reduces decision logs into reports. All methods are pure
// functions of their input.
type Generator struct {
	config Config
}

// NewGenerator creates a report generator. Zero fields take defaults.
func NewGenerator(config Config) *Generator {
	def := DefaultConfig()
	if config.Location == nil {
		config.Location = def.Location
	}
	if config.BusinessHourEnd <= config.BusinessHourStart {
		config.BusinessHourStart, config.BusinessHourEnd = def.BusinessHourStart, def.BusinessHourEnd
	}
	if config.DenialRateThreshold <= 0 {
		config.DenialRateThreshold = def.DenialRateThreshold
	}
	if config.AfterHoursRateThreshold <= 0 {
		config.AfterHoursRateThreshold = def.AfterHoursRateThreshold
	}
	if config.HighSensitivityThreshold <= 0 {
		config.HighSensitivityThreshold = def.HighSensitivityThreshold
	}
	if config.ApprovedJurisdiction == "" {
		config.ApprovedJurisdiction = def.ApprovedJurisdiction
	}
	return &Generator{config: config}
}

// Generate builds the report of type t.
func (g *Generator) Generate(t Type, period Period, logs []*audit.DecisionLog) (Report, error) {
	switch t {
	case TypeComplianceSummary:
		return g.ComplianceSummary(period, logs), nil
	case TypeUserActivity:
		return g.UserActivity(period, logs), nil
	case TypePolicyEffectiveness:
		return g.PolicyEffectiveness(period, logs), nil
	}
	return nil, fmt.Errorf("unknown report type %q", t)
}

// ComplianceSummary counts decisions per regulatory regime.
func (g *Generator) ComplianceSummary(period Period, logs []*audit.DecisionLog) *ComplianceSummary {
	r := &ComplianceSummary{Period: period, TotalDecisions: len(logs)}
	owners := map[string]bool{}

	for _, log := range logs {
		intent := &log.Intent
		denied := log.Decision.Decision == decision.Deny

		if log.Compliance.PrivacyLawApplicable {
			r.Privacy.Decisions++
			if denied {
				r.Privacy.Denials++
			}
		}
		if intent.Compliance.Privacy.CrossBorderTransfer {
			r.Privacy.CrossBorderAttempts++
		}
		if intent.Financial.PersonalData || intent.Compliance.Privacy.PersonalDataInvolved {
			r.Privacy.PersonalDataAccess++
		}

		if log.Compliance.IndigenousDataInvolved {
			r.Indigenous.Decisions++
			if data := intent.Financial.IndigenousData; data != nil {
				if data.ContainsSacredKnowledge {
					r.Indigenous.SacredKnowledgeAccess++
				}
				for _, o := range data.TraditionalOwners {
					owners[o] = true
				}
			}
		}

		if log.Compliance.FinancialCrimeReportingApplicable {
			r.FinancialCrime.Decisions++
			if log.Audit.HasFlag(audit.FlagAUSTRACThreshold) {
				r.FinancialCrime.LargeTransactions++
				r.FinancialCrime.TotalAmount += intent.Financial.Amount
			}
		}

		switch country := intent.User.Location.Country; {
		case country == g.config.ApprovedJurisdiction:
			r.Residency.InCountry++
		case country != "":
			r.Residency.Overseas++
		}
		if denied && log.Decision.Reason == precheck.ReasonResidency {
			r.Residency.Violations++
		}

		if denied && log.Decision.Reason == precheck.ReasonAuthentication {
			r.Security.Denials++
		}
		if log.Audit.DataClassification.IsHigh() {
			r.Security.HighSensitivityAccess++
		}
	}

	r.Indigenous.TraditionalOwners = len(owners)
	return r
}

// UserActivity summarizes activity and risk heuristics per user.
func (g *Generator) UserActivity(period Period, logs []*audit.DecisionLog) *UserActivityReport {
	byUser := map[string]*UserActivity{}
	afterHours := map[string]int{}

	for _, log := range logs {
		id := log.Audit.UserID
		if id == "" {
			id = log.Intent.User.ID
		}
		u, ok := byUser[id]
		if !ok {
			u = &UserActivity{
				UserID:     id,
				Operations: map[decision.Operation]int{},
				Decisions:  map[decision.Outcome]int{},
				FirstSeen:  log.Timestamp,
				LastSeen:   log.Timestamp,
			}
			byUser[id] = u
		}

		u.TotalDecisions++
		u.Operations[log.Intent.Operation]++
		u.Decisions[log.Decision.Decision]++
		if log.Timestamp.Before(u.FirstSeen) {
			u.FirstSeen = log.Timestamp
		}
		if log.Timestamp.After(u.LastSeen) {
			u.LastSeen = log.Timestamp
		}

		if log.Compliance.PrivacyLawApplicable {
			u.Compliance.PrivacyLaw++
		}
		if log.Compliance.IndigenousDataInvolved {
			u.Compliance.IndigenousData++
		}
		if log.Compliance.FinancialCrimeReportingApplicable {
			u.Compliance.FinancialCrime++
		}
		if log.Intent.Compliance.Privacy.CrossBorderTransfer {
			u.Compliance.CrossBorder++
		}
		if log.Audit.DataClassification.IsHigh() {
			u.Compliance.HighSensitivity++
		}
		if g.afterHours(log.Timestamp) {
			afterHours[id]++
		}
	}

	r := &UserActivityReport{Period: period, TotalUsers: len(byUser), Users: make([]UserActivity, 0, len(byUser))}
	for id, u := range byUser {
		u.RiskIndicators = g.risk(u, afterHours[id])
		r.Users = append(r.Users, *u)
	}
	sort.Slice(r.Users, func(i, j int) bool { return r.Users[i].UserID < r.Users[j].UserID })
	return r
}

func (g *Generator) risk(u *UserActivity, afterHours int) RiskIndicators {
	ri := RiskIndicators{
		DenialRate:         rate(u.Decisions[decision.Deny], u.TotalDecisions),
		AfterHoursRate:     rate(afterHours, u.TotalDecisions),
		SuspiciousPatterns: []string{},
	}
	if ri.DenialRate > g.config.DenialRateThreshold {
		ri.SuspiciousPatterns = append(ri.SuspiciousPatterns, PatternHighDenialRate)
	}
	if ri.AfterHoursRate > g.config.AfterHoursRateThreshold {
		ri.SuspiciousPatterns = append(ri.SuspiciousPatterns, PatternAfterHoursActivity)
	}
	if u.Compliance.HighSensitivity >= g.config.HighSensitivityThreshold {
		ri.SuspiciousPatterns = append(ri.SuspiciousPatterns, PatternFrequentHighSensitivity)
	}
	return ri
}

// afterHours reports whether t falls outside weekday business hours.
func (g *Generator) afterHours(t time.Time) bool {
	local := t.In(g.config.Location)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	h := local.Hour()
	return h < g.config.BusinessHourStart || h >= g.config.BusinessHourEnd
}

// PolicyEffectiveness summarizes decisions per evaluated policy.
func (g *Generator) PolicyEffectiveness(period Period, logs []*audit.DecisionLog) *PolicyEffectivenessReport {
	r := &PolicyEffectivenessReport{Period: period, TotalDecisions: len(logs)}
	stats := map[string]*PolicyStats{}
	totalMs := map[string]float64{}

	var allow, deny, conditional int
	var privacy, privacyDenied, indigenous, indigenousDenied int

	for _, log := range logs {
		outcome := log.Decision.Decision
		switch outcome {
		case decision.Allow:
			allow++
		case decision.Deny:
			deny++
		case decision.Conditional:
			conditional++
		}

		if log.Compliance.PrivacyLawApplicable {
			privacy++
			if outcome == decision.Deny {
				privacyDenied++
			}
		}
		if log.Compliance.IndigenousDataInvolved {
			indigenous++
			if outcome == decision.Deny {
				indigenousDenied++
			}
		}

		for _, id := range log.Decision.EvaluatedPolicies {
			s, ok := stats[id]
			if !ok {
				s = &PolicyStats{PolicyID: id}
				stats[id] = s
			}
			s.Evaluations++
			switch outcome {
			case decision.Allow:
				s.Allow++
			case decision.Deny:
				s.Deny++
			case decision.Conditional:
				s.Conditional++
			}
			totalMs[id] += log.Decision.Performance.EvaluationTimeMs
		}
	}

	r.Policies = make([]PolicyStats, 0, len(stats))
	for id, s := range stats {
		s.AvgExecutionTimeMs = totalMs[id] / float64(s.Evaluations)
		r.Policies = append(r.Policies, *s)
	}
	sort.Slice(r.Policies, func(i, j int) bool { return r.Policies[i].PolicyID < r.Policies[j].PolicyID })

	r.AllowRate = rate(allow, len(logs))
	r.DenyRate = rate(deny, len(logs))
	r.ConditionalRate = rate(conditional, len(logs))
	r.Compliance.PrivacyLaw = 1 - rate(privacyDenied, privacy)
	r.Compliance.IndigenousData = 1 - rate(indigenousDenied, indigenous)
	return r
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
