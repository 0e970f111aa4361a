// Package integrity protects decision logs at rest.
//
// A master key from key management is expanded with HKDF-SHA256 into a
// signing key and an encryption key. The Signer attaches an HMAC-SHA256
// over a log's identifying fields; any mismatch on read is reported as an
// *audit.IntegrityViolation. The Sealer encrypts traditional-owner
// identifiers, the raw evaluator payload and free-text justifications with
// AES-256-GCM, storing them as "enc:"-prefixed base64 in DecisionLog.Sealed.
//
// Protector is the one boundary both directions go through:
//
//	p, err := integrity.NewProtector(ctx, integrity.SecretKeySource{
//	    Secrets: secretsManager,
//	    Name:    "audit_master_key",
//	}, true)
//	...
//	p.Protect(log) // before storage
//	p.Reveal(log)  // after storage, inside the audit query engine
package integrity
