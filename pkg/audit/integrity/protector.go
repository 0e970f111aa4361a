package integrity

import (
	"context"

	"mercator-hq/arbiter/pkg/audit"
)

// Protector combines signing and optional sealing. It is the single
// boundary through which logs pass on their way to and from storage.
type Protector struct {
	signer *Signer
	sealer *Sealer // nil when encryption is disabled
}

// NewProtector loads keys from src and builds a Protector. Sealing is
// enabled when encrypt is true.
func NewProtector(ctx context.Context, src KeySource, encrypt bool) (*Protector, error) {
	keys, err := LoadKeys(ctx, src)
	if err != nil {
		return nil, err
	}
	defer keys.Zeroize()

	p := &Protector{signer: NewSigner(keys.Signing)}
	if encrypt {
		sealer, err := NewSealer(keys.Encryption)
		if err != nil {
			return nil, err
		}
		p.sealer = sealer
	}
	return p, nil
}

// Protect signs log and seals its sensitive fields.
func (p *Protector) Protect(log *audit.DecisionLog) error {
	p.signer.Sign(log)
	if p.sealer != nil {
		return p.sealer.Seal(log)
	}
	return nil
}

// Reveal verifies log and unseals its sensitive fields. An integrity
// failure is returned as *audit.IntegrityViolation.
func (p *Protector) Reveal(log *audit.DecisionLog) error {
	if err := p.signer.Verify(log); err != nil {
		return err
	}
	if p.sealer != nil {
		return p.sealer.Open(log)
	}
	return nil
}

// Encrypting reports whether sealing is enabled.
func (p *Protector) Encrypting() bool {
	return p.sealer != nil
}
