package auth

// APIKeyInfo describes an operator API key.
type APIKeyInfo struct {
	Key     string
	UserID  string
	Enabled bool
}

// APIKeyStore validates API keys.
type APIKeyStore interface {
	Validate(key string) (*APIKeyInfo, error)
	List() []*APIKeyInfo
}

// APIKeySource defines where to extract API keys from.
type APIKeySource struct {
	Type   string // header, query
	Name   string // header name or query param
	Scheme string // "Bearer", etc. (optional)
}
