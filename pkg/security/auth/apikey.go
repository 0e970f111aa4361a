package auth

import (
	"crypto/subtle"
	"errors"
	"sort"
	"sync"

	"mercator-hq/arbiter/pkg/config"
)

var (
	// ErrInvalidKey is returned for keys that are not configured.
	ErrInvalidKey = errors.New("invalid API key")

	// ErrKeyDisabled is returned for configured keys that are disabled.
	ErrKeyDisabled = errors.New("API key disabled")
)

// APIKeyValidator validates API keys against a configured set of keys.
type APIKeyValidator struct {
	mu   sync.RWMutex
	keys map[string]*APIKeyInfo
}

// NewAPIKeyValidator creates a new API key validator with the given keys.
func NewAPIKeyValidator(keys []*APIKeyInfo) *APIKeyValidator {
	keyMap := make(map[string]*APIKeyInfo, len(keys))
	for _, key := range keys {
		keyMap[key.Key] = key
	}
	return &APIKeyValidator{keys: keyMap}
}

// NewFromConfig builds the validator and key sources from the
// authentication section. With no sources configured, keys are read from
// "Authorization: Bearer <key>" and then "X-API-Key".
func NewFromConfig(cfg config.AuthenticationConfig) (*APIKeyValidator, []APIKeySource) {
	keys := make([]*APIKeyInfo, 0, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys = append(keys, &APIKeyInfo{Key: k.Key, UserID: k.UserID, Enabled: k.Enabled})
	}

	sources := make([]APIKeySource, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, APIKeySource{Type: s.Type, Name: s.Name, Scheme: s.Scheme})
	}
	if len(sources) == 0 {
		sources = DefaultSources()
	}
	return NewAPIKeyValidator(keys), sources
}

// DefaultSources returns the bearer header and X-API-Key header sources.
func DefaultSources() []APIKeySource {
	return []APIKeySource{
		{Type: "header", Name: "Authorization", Scheme: "Bearer"},
		{Type: "header", Name: "X-API-Key"},
	}
}

// Validate checks if the given API key is valid and returns its info.
// Comparison is constant time per configured key.
func (v *APIKeyValidator) Validate(key string) (*APIKeyInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var match *APIKeyInfo
	for k, info := range v.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			match = info
		}
	}
	if match == nil {
		return nil, ErrInvalidKey
	}
	if !match.Enabled {
		return nil, ErrKeyDisabled
	}
	return match, nil
}

// List returns all configured API keys ordered by user id.
func (v *APIKeyValidator) List() []*APIKeyInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()

	keys := make([]*APIKeyInfo, 0, len(v.keys))
	for _, key := range v.keys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].UserID < keys[j].UserID })
	return keys
}

// Add adds or replaces an API key.
func (v *APIKeyValidator) Add(info *APIKeyInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[info.Key] = info
}

// Remove removes an API key from the validator.
func (v *APIKeyValidator) Remove(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.keys, key)
}
