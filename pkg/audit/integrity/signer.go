package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"mercator-hq/arbiter/pkg/audit"
)

// Signer computes and verifies keyed integrity hashes on decision logs.
type Signer struct {
	key []byte
}

// NewSigner creates a Signer from a signing key.
func NewSigner(key []byte) *Signer {
	return &Signer{key: append([]byte(nil), key...)}
}

// Sum returns the hex HMAC-SHA256 of the log's identifying fields: id,
// user id, operation, timestamp, decision and evaluated-policy count.
func (s *Signer) Sum(log *audit.DecisionLog) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(canonical(log)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign sets log.Hash.
func (s *Signer) Sign(log *audit.DecisionLog) {
	log.Hash = s.Sum(log)
}

// Verify recomputes the hash and returns an *audit.IntegrityViolation when
// it does not match the stored one.
func (s *Signer) Verify(log *audit.DecisionLog) error {
	stored, err := hex.DecodeString(log.Hash)
	if err != nil || !hmac.Equal(stored, mustDecode(s.Sum(log))) {
		return audit.NewIntegrityViolation(log.ID)
	}
	return nil
}

func canonical(log *audit.DecisionLog) string {
	return strings.Join([]string{
		log.ID,
		log.Intent.User.ID,
		string(log.Intent.Operation),
		log.Timestamp.UTC().Format(time.RFC3339Nano),
		string(log.Decision.Decision),
		strconv.Itoa(len(log.Decision.EvaluatedPolicies)),
	}, "|")
}

func mustDecode(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
