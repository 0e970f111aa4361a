package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinMasterKeyBytes is the minimum accepted master key length.
const MinMasterKeyBytes = 32

// HKDF info strings for each derived key.
const (
	infoSigning    = "arbiter/decision-log/hmac-sha256/v1"
	infoEncryption = "arbiter/decision-log/aes-256-gcm/v1"
)

// KeySource supplies the master key from key management.
type KeySource interface {
	MasterKey(ctx context.Context) ([]byte, error)
}

// SecretGetter is the subset of a secrets manager used by SecretKeySource.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SecretKeySource reads the master key from a secrets manager. The secret
// value may be hex, base64 or raw text.
type SecretKeySource struct {
	Secrets SecretGetter
	Name    string
}

// MasterKey implements KeySource.
func (s SecretKeySource) MasterKey(ctx context.Context) ([]byte, error) {
	value, err := s.Secrets.GetSecret(ctx, s.Name)
	if err != nil {
		return nil, fmt.Errorf("load master key %q: %w", s.Name, err)
	}
	return DecodeKey(value)
}

// StaticKeySource returns a fixed key. It is intended for tests and local
// development.
type StaticKeySource []byte

// MasterKey implements KeySource.
func (s StaticKeySource) MasterKey(context.Context) ([]byte, error) {
	return append([]byte(nil), s...), nil
}

// DecodeKey decodes a key written as "hex:...", "base64:..." or raw text.
func DecodeKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, "hex:"):
		return hex.DecodeString(strings.TrimPrefix(value, "hex:"))
	case strings.HasPrefix(value, "base64:"):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "base64:"))
	default:
		return []byte(value), nil
	}
}

// Keys are the purpose-specific keys derived from one master key.
type Keys struct {
	Signing    []byte
	Encryption []byte
}

// DeriveKeys expands master into independent signing and encryption keys
// with HKDF-SHA256.
func DeriveKeys(master []byte) (*Keys, error) {
	if len(master) < MinMasterKeyBytes {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", MinMasterKeyBytes, len(master))
	}
	signing, err := expand(master, infoSigning)
	if err != nil {
		return nil, err
	}
	encryption, err := expand(master, infoEncryption)
	if err != nil {
		return nil, err
	}
	return &Keys{Signing: signing, Encryption: encryption}, nil
}

// LoadKeys fetches the master key from src and derives the working keys.
func LoadKeys(ctx context.Context, src KeySource) (*Keys, error) {
	master, err := src.MasterKey(ctx)
	if err != nil {
		return nil, err
	}
	defer zero(master)
	return DeriveKeys(master)
}

// Zeroize clears key material.
func (k *Keys) Zeroize() {
	zero(k.Signing)
	zero(k.Encryption)
}

func expand(master []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
