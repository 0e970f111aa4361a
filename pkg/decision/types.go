package decision

import (
	"encoding/json"
	"time"
)

// Operation identifies the financial action a user is attempting.
type Operation string

const (
	OperationViewBalance        Operation = "view_balance"
	OperationCreatePayment      Operation = "create_payment"
	OperationApprovePayment     Operation = "approve_payment"
	OperationCreateBudget       Operation = "create_budget"
	OperationAllocateFunds      Operation = "allocate_funds"
	OperationDistributeBenefits Operation = "distribute_benefits"
	OperationConfigurePolicies  Operation = "configure_policies"
	OperationAccessAuditLogs    Operation = "access_audit_logs"
	OperationExportData         Operation = "export_data"
	OperationModifyUserRoles    Operation = "modify_user_roles"
)

var validOperations = map[Operation]bool{
	OperationViewBalance:        true,
	OperationCreatePayment:      true,
	OperationApprovePayment:     true,
	OperationCreateBudget:       true,
	OperationAllocateFunds:      true,
	OperationDistributeBenefits: true,
	OperationConfigurePolicies:  true,
	OperationAccessAuditLogs:    true,
	OperationExportData:         true,
	OperationModifyUserRoles:    true,
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	return validOperations[o]
}

// Sensitivity is the data classification of the resource being acted upon.
// Levels are totally ordered from public to secret.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
	SensitivitySecret       Sensitivity = "secret"
)

var sensitivityRank = map[Sensitivity]int{
	SensitivityPublic:       0,
	SensitivityInternal:     1,
	SensitivityConfidential: 2,
	SensitivityRestricted:   3,
	SensitivitySecret:       4,
}

// Rank returns the position of s in the classification order, or -1 if s is unknown.
func (s Sensitivity) Rank() int {
	if r, ok := sensitivityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is classified at or above other.
func (s Sensitivity) AtLeast(other Sensitivity) bool {
	return s.Rank() >= other.Rank() && s.Rank() >= 0
}

// IsHigh reports whether s is restricted or secret.
func (s Sensitivity) IsHigh() bool {
	return s.AtLeast(SensitivityRestricted)
}

// NetworkType describes where a request originated.
type NetworkType string

const (
	NetworkCorporate  NetworkType = "corporate"
	NetworkVPN        NetworkType = "vpn"
	NetworkPublic     NetworkType = "public"
	NetworkGovernment NetworkType = "government"
)

// FinancialIntent is a structured description of an attempted financial
// operation together with the context required to authorize it.
type FinancialIntent struct {
	ID         string            `json:"id"`
	Operation  Operation         `json:"operation"`
	User       UserContext       `json:"user"`
	Financial  FinancialContext  `json:"financial"`
	Request    RequestContext    `json:"request"`
	Compliance ComplianceContext `json:"compliance"`
}

// UserContext describes the acting user.
type UserContext struct {
	ID             string         `json:"id"`
	Roles          []string       `json:"roles"`
	Authentication Authentication `json:"authentication"`
	Location       Location       `json:"location"`
	Network        Network        `json:"network"`
}

// Authentication captures the strength of the user's session.
type Authentication struct {
	Verified                bool `json:"verified"`
	MFACompleted            bool `json:"mfa_completed"`
	SessionAgeMinutes       int  `json:"session_age_minutes"`
	DaysSincePasswordChange int  `json:"days_since_password_change"`
}

// Location is the user's reported physical location.
type Location struct {
	Country  string `json:"country"`
	Region   string `json:"region,omitempty"`
	Verified bool   `json:"verified"`
}

// Network is the network the request arrived from.
type Network struct {
	Type     NetworkType `json:"type"`
	Verified bool        `json:"verified"`
}

// FinancialContext describes the money and data being touched.
type FinancialContext struct {
	// Amount is expressed in integer minor currency units (cents).
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Categories     []string        `json:"categories,omitempty"`
	Sensitivity    Sensitivity     `json:"sensitivity"`
	PersonalData   bool            `json:"personal_data"`
	IndigenousData *IndigenousData `json:"indigenous_data,omitempty"`
}

// IndigenousData carries the CARE principle checks and cultural protocol
// state for data belonging to Aboriginal and Torres Strait Islander peoples.
type IndigenousData struct {
	TraditionalOwners       []string        `json:"traditional_owners"`
	CollectiveBenefit       bool            `json:"collective_benefit"`
	AuthorityToControl      bool            `json:"authority_to_control"`
	Responsibility          bool            `json:"responsibility"`
	Ethics                  bool            `json:"ethics"`
	CulturalProtocols       map[string]bool `json:"cultural_protocols,omitempty"`
	ContainsSacredKnowledge bool            `json:"contains_sacred_knowledge"`
	ElderApproval           bool            `json:"elder_approval"`
}

// CAREMet reports whether all four CARE principle checks are satisfied.
func (d *IndigenousData) CAREMet() bool {
	return d.CollectiveBenefit && d.AuthorityToControl && d.Responsibility && d.Ethics
}

// ProtocolsMet reports whether every cultural protocol check passed.
func (d *IndigenousData) ProtocolsMet() bool {
	for _, ok := range d.CulturalProtocols {
		if !ok {
			return false
		}
	}
	return true
}

// RequestContext is transport-level metadata about the request.
type RequestContext struct {
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
	SessionID     string    `json:"session_id,omitempty"`
	Endpoint      string    `json:"endpoint,omitempty"`
	Method        string    `json:"method,omitempty"`
	Justification string    `json:"justification,omitempty"`
}

// ComplianceContext carries regulatory context supplied by the caller.
type ComplianceContext struct {
	Privacy             PrivacyContext       `json:"privacy"`
	DataResidency       DataResidency        `json:"data_residency"`
	IndigenousProtocols *IndigenousProtocols `json:"indigenous_protocols,omitempty"`
}

// PrivacyContext describes privacy-law relevant facts of the request.
type PrivacyContext struct {
	PersonalDataInvolved bool   `json:"personal_data_involved"`
	ConsentObtained      bool   `json:"consent_obtained"`
	PurposeLimitation    bool   `json:"purpose_limitation"`
	CrossBorderTransfer  bool   `json:"cross_border_transfer"`
	DestinationCountry   string `json:"destination_country,omitempty"`
}

// DataResidency describes where the data is held.
type DataResidency struct {
	Country            string `json:"country"`
	Region             string `json:"region,omitempty"`
	GovernmentApproved bool   `json:"government_approved"`
}

// IndigenousProtocols lists which Indigenous data protocols apply.
type IndigenousProtocols struct {
	CARERequired             bool `json:"care_required"`
	CommunityConsentRequired bool `json:"community_consent_required"`
	ElderApprovalRequired    bool `json:"elder_approval_required"`
}

// InvolvesIndigenousData reports whether the intent touches Indigenous data.
func (i *FinancialIntent) InvolvesIndigenousData() bool {
	return i.Financial.IndigenousData != nil
}

// Outcome is the authorization verdict.
type Outcome string

const (
	Allow       Outcome = "allow"
	Deny        Outcome = "deny"
	Conditional Outcome = "conditional"
)

// Valid reports whether o is a known verdict.
func (o Outcome) Valid() bool {
	return o == Allow || o == Deny || o == Conditional
}

// ConditionType enumerates the obligations a conditional decision may carry.
type ConditionType string

const (
	ConditionApprovalRequired       ConditionType = "approval_required"
	ConditionStepUpAuth             ConditionType = "step_up_auth"
	ConditionAdditionalVerification ConditionType = "additional_verification"
	ConditionTimeLimited            ConditionType = "time_limited"
	ConditionMonitoringRequired     ConditionType = "monitoring_required"
)

// Condition is an obligation attached to a conditional decision.
type Condition struct {
	Type         ConditionType  `json:"type"`
	Description  string         `json:"description"`
	Requirements map[string]any `json:"requirements,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
}

// Performance records how a decision was produced.
type Performance struct {
	EvaluationTimeMs  float64 `json:"evaluation_time_ms"`
	CacheHit          bool    `json:"cache_hit"`
	PoliciesEvaluated int     `json:"policies_evaluated"`
}

// RawResult is the evaluator's payload kept verbatim for audit.
type RawResult struct {
	Query       string          `json:"query,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Explanation []string        `json:"explanation,omitempty"`
	Trace       json.RawMessage `json:"trace,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// PolicyDecision is the normalized output of an authorization decision.
type PolicyDecision struct {
	Decision          Outcome     `json:"decision"`
	EvaluatedPolicies []string    `json:"evaluated_policies"`
	Reason            string      `json:"reason"`
	Conditions        []Condition `json:"conditions,omitempty"`
	Performance       Performance `json:"performance"`
	Raw               *RawResult  `json:"raw,omitempty"`
}

// Clone returns a deep copy of d so callers cannot mutate shared state.
func (d *PolicyDecision) Clone() *PolicyDecision {
	if d == nil {
		return nil
	}
	out := *d
	if d.EvaluatedPolicies != nil {
		out.EvaluatedPolicies = append([]string{}, d.EvaluatedPolicies...)
	}
	if d.Conditions != nil {
		out.Conditions = make([]Condition, len(d.Conditions))
		for i, c := range d.Conditions {
			cc := c
			if c.Requirements != nil {
				cc.Requirements = make(map[string]any, len(c.Requirements))
				for k, v := range c.Requirements {
					cc.Requirements[k] = v
				}
			}
			if c.ExpiresAt != nil {
				t := *c.ExpiresAt
				cc.ExpiresAt = &t
			}
			out.Conditions[i] = cc
		}
	}
	if d.Raw != nil {
		raw := *d.Raw
		raw.Result = append(json.RawMessage(nil), d.Raw.Result...)
		raw.Trace = append(json.RawMessage(nil), d.Raw.Trace...)
		raw.Explanation = append([]string(nil), d.Raw.Explanation...)
		out.Raw = &raw
	}
	return &out
}

// NewDenial builds a deny decision that did not reach the evaluator.
func NewDenial(reason string) *PolicyDecision {
	return &PolicyDecision{
		Decision:          Deny,
		EvaluatedPolicies: []string{},
		Reason:            reason,
	}
}
