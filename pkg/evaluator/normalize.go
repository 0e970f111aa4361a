package evaluator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"mercator-hq/arbiter/pkg/decision"
)

// Default reasons used when the evaluator does not supply one.
const (
	ReasonAllowed      = "allowed by policy"
	ReasonDenied       = "denied by policy"
	ReasonConditional  = "conditional approval required"
	ReasonUndefined    = "no applicable policy decision"
	ReasonNoConditions = "conditional result carried no conditions"
)

// evaluateRequest is the body sent to POST /v1/evaluate.
type evaluateRequest struct {
	Query    string                    `json:"query"`
	Input    *decision.FinancialIntent `json:"input"`
	Policies []string                  `json:"policies"`
	Explain  bool                      `json:"explain"`
	Trace    bool                      `json:"trace"`
}

// evaluateResponse is the body returned by POST /v1/evaluate.
type evaluateResponse struct {
	Result            json.RawMessage `json:"result"`
	EvaluatedPolicies []string        `json:"evaluated_policies,omitempty"`
	Explanation       []string        `json:"explanation,omitempty"`
	Trace             json.RawMessage `json:"trace,omitempty"`
}

// structuredResult is the object form of a result.
type structuredResult struct {
	Allow       *bool                `json:"allow"`
	Conditional bool                 `json:"conditional"`
	Conditions  []decision.Condition `json:"conditions"`
	Reason      string               `json:"reason"`
}

// Normalize converts an evaluator result into a PolicyDecision. A boolean
// maps to allow or deny, an object carrying conditional and conditions maps
// to a conditional decision, and an absent result is a deny. A result
// marked conditional without any conditions is denied.
func Normalize(query string, requested []string, resp *evaluateResponse) (*decision.PolicyDecision, error) {
	d := &decision.PolicyDecision{
		EvaluatedPolicies: append([]string{}, requested...),
		Raw: &decision.RawResult{
			Query:       query,
			Result:      resp.Result,
			Explanation: resp.Explanation,
			Trace:       resp.Trace,
		},
	}
	if len(resp.EvaluatedPolicies) > 0 {
		d.EvaluatedPolicies = append([]string{}, resp.EvaluatedPolicies...)
	}
	d.Performance.PoliciesEvaluated = len(d.EvaluatedPolicies)

	raw := bytes.TrimSpace(resp.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		d.Decision = decision.Deny
		d.Reason = ReasonUndefined
		return d, nil
	}

	switch raw[0] {
	case 't', 'f':
		var allowed bool
		if err := json.Unmarshal(raw, &allowed); err != nil {
			return nil, fmt.Errorf("decode boolean result: %w", err)
		}
		if allowed {
			d.Decision, d.Reason = decision.Allow, ReasonAllowed
		} else {
			d.Decision, d.Reason = decision.Deny, ReasonDenied
		}
		return d, nil

	case '{':
		var sr structuredResult
		if err := json.Unmarshal(raw, &sr); err != nil {
			return nil, fmt.Errorf("decode structured result: %w", err)
		}
		switch {
		case sr.Conditional && len(sr.Conditions) == 0:
			// allow is ignored once a result claims to be conditional.
			d.Decision = decision.Deny
			d.Reason = ReasonNoConditions
		case sr.Conditional:
			d.Decision = decision.Conditional
			d.Conditions = sr.Conditions
			d.Reason = orDefault(sr.Reason, ReasonConditional)
		case sr.Allow != nil && *sr.Allow:
			d.Decision = decision.Allow
			d.Reason = orDefault(sr.Reason, ReasonAllowed)
		default:
			d.Decision = decision.Deny
			d.Reason = orDefault(sr.Reason, ReasonDenied)
		}
		return d, nil
	}

	return nil, fmt.Errorf("unsupported result shape: %s", truncate(string(raw), 64))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
