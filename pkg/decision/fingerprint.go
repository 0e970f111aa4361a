package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// fingerprintInput is the projection of an intent that can influence the
// evaluator's verdict. Identifiers that are unique per request are left out.
type fingerprintInput struct {
	Operation  Operation         `json:"operation"`
	User       UserContext       `json:"user"`
	Financial  FinancialContext  `json:"financial"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Method     string            `json:"method,omitempty"`
	Reason     string            `json:"justification,omitempty"`
	Compliance ComplianceContext `json:"compliance"`
	Timestamp  *time.Time        `json:"timestamp,omitempty"`
}

// Fingerprint returns a stable SHA-256 hex digest of the decision-relevant
// fields of intent. Two intents that differ only in id, request id,
// timestamp or session id share a fingerprint. When timeSensitive is true
// the request timestamp is included.
func Fingerprint(intent *FinancialIntent, timeSensitive bool) string {
	in := fingerprintInput{
		Operation:  intent.Operation,
		User:       intent.User,
		Financial:  intent.Financial,
		Endpoint:   intent.Request.Endpoint,
		Method:     intent.Request.Method,
		Reason:     intent.Request.Justification,
		Compliance: intent.Compliance,
	}
	in.User.Roles = sortedCopy(intent.User.Roles)
	in.Financial.Categories = sortedCopy(intent.Financial.Categories)
	if d := intent.Financial.IndigenousData; d != nil {
		cp := *d
		cp.TraditionalOwners = sortedCopy(d.TraditionalOwners)
		in.Financial.IndigenousData = &cp
	}
	if timeSensitive {
		ts := intent.Request.Timestamp.UTC()
		in.Timestamp = &ts
	}

	// Struct fields marshal in declaration order and maps in key order,
	// which keeps the encoding canonical.
	data, err := json.Marshal(in)
	if err != nil {
		// Only unsupported types fail to marshal and none are reachable here.
		panic("decision: fingerprint marshal: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
