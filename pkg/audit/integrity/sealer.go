package integrity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/decision"
)

const encPrefix = "enc:"

// Sealed field names.
const (
	FieldTraditionalOwners = "traditional_owners"
	FieldRawResult         = "raw"
	FieldJustification     = "justification"
)

// Sealer encrypts sensitive decision-log fields with AES-256-GCM before
// they reach storage and restores them on read. Each ciphertext is bound
// to its log id as additional authenticated data.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Seal moves traditional-owner identifiers, the raw evaluator payload and
// the justification text into log.Sealed as ciphertext and blanks the
// plaintext fields. Shared pointers in log are replaced, not mutated.
func (s *Sealer) Seal(log *audit.DecisionLog) error {
	sealed := map[string]string{}

	if data := log.Intent.Financial.IndigenousData; data != nil && len(data.TraditionalOwners) > 0 {
		plain, err := json.Marshal(data.TraditionalOwners)
		if err != nil {
			return err
		}
		ct, err := s.encrypt(plain, log.ID)
		if err != nil {
			return err
		}
		sealed[FieldTraditionalOwners] = ct
		cp := *data
		cp.TraditionalOwners = nil
		log.Intent.Financial.IndigenousData = &cp
	}

	if log.Decision.Raw != nil {
		plain, err := json.Marshal(log.Decision.Raw)
		if err != nil {
			return err
		}
		ct, err := s.encrypt(plain, log.ID)
		if err != nil {
			return err
		}
		sealed[FieldRawResult] = ct
		log.Decision.Raw = nil
	}

	if j := log.Intent.Request.Justification; j != "" {
		ct, err := s.encrypt([]byte(j), log.ID)
		if err != nil {
			return err
		}
		sealed[FieldJustification] = ct
		log.Intent.Request.Justification = ""
	}

	if len(sealed) > 0 {
		log.Sealed = sealed
	}
	return nil
}

// Open decrypts log.Sealed back into the plaintext fields. A field that
// fails authentication, including one moved from another log, is returned
// as *audit.IntegrityViolation.
func (s *Sealer) Open(log *audit.DecisionLog) error {
	if len(log.Sealed) == 0 {
		return nil
	}

	if ct, ok := log.Sealed[FieldTraditionalOwners]; ok {
		plain, err := s.decrypt(ct, log.ID)
		if err != nil {
			return audit.NewSealedFieldViolation(log.ID, FieldTraditionalOwners)
		}
		var owners []string
		if err := json.Unmarshal(plain, &owners); err != nil {
			return fmt.Errorf("decode %s: %w", FieldTraditionalOwners, err)
		}
		if log.Intent.Financial.IndigenousData == nil {
			log.Intent.Financial.IndigenousData = &decision.IndigenousData{}
		} else {
			cp := *log.Intent.Financial.IndigenousData
			log.Intent.Financial.IndigenousData = &cp
		}
		log.Intent.Financial.IndigenousData.TraditionalOwners = owners
	}

	if ct, ok := log.Sealed[FieldRawResult]; ok {
		plain, err := s.decrypt(ct, log.ID)
		if err != nil {
			return audit.NewSealedFieldViolation(log.ID, FieldRawResult)
		}
		var raw decision.RawResult
		if err := json.Unmarshal(plain, &raw); err != nil {
			return fmt.Errorf("decode %s: %w", FieldRawResult, err)
		}
		log.Decision.Raw = &raw
	}

	if ct, ok := log.Sealed[FieldJustification]; ok {
		plain, err := s.decrypt(ct, log.ID)
		if err != nil {
			return audit.NewSealedFieldViolation(log.ID, FieldJustification)
		}
		log.Intent.Request.Justification = string(plain)
	}

	log.Sealed = nil
	return nil
}

// IsSealed reports whether value carries the ciphertext prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

func (s *Sealer) encrypt(plain []byte, logID string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ct := s.aead.Seal(nonce, nonce, plain, []byte(logID))
	return encPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

func (s *Sealer) decrypt(value, logID string) ([]byte, error) {
	if !IsSealed(value) {
		return nil, fmt.Errorf("value is not sealed")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(logID))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}
