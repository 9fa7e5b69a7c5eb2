package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Provider identifies an external OAuth2 authorization server whose APIs
// tokend calls on a tenant's behalf. The store and manager treat it as an
// opaque key, so adding a provider is a configuration change, not a schema
// change.
type Provider string

const (
	ProviderA Provider = "providera"
	ProviderB Provider = "providerb"
)

// ParseProvider maps a path or configuration value to a known Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(s)) {
	case ProviderA:
		return ProviderA, nil
	case ProviderB:
		return ProviderB, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// maxTenantKeyLen bounds caller-supplied tenant keys before they reach
// storage. Keys are opaque but attacker-controlled, so they are validated
// syntactically up front.
const maxTenantKeyLen = 128

// ValidateTenantKey rejects tenant keys that are empty, oversized, or
// contain whitespace/control characters.
func ValidateTenantKey(key string) error {
	if key == "" {
		return errors.New("tenant key is empty")
	}
	if len(key) > maxTenantKeyLen {
		return fmt.Errorf("tenant key exceeds %d bytes", maxTenantKeyLen)
	}
	for _, r := range key {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return errors.New("tenant key contains whitespace or control characters")
		}
	}
	return nil
}

// Record is the durable credential state for one (tenant, provider) pair.
// Exactly one Record exists per pair; it is created on the first successful
// authorization-code exchange and mutated in place on every refresh.
type Record struct {
	TenantKey string   `json:"tenant_key"`
	Provider  Provider `json:"provider"`

	// AccessToken is the short-lived bearer credential. Secret.
	AccessToken RedactedToken `json:"access_token"`

	// RefreshToken is the longer-lived credential used to obtain new access
	// tokens. Secret. Replaced only when the provider rotates it, in the
	// same write as the access token.
	RefreshToken RedactedToken `json:"refresh_token"`

	// ExpiresAt is the absolute instant after which AccessToken must not be
	// used. A Record is never stored without it.
	ExpiresAt time.Time `json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the access token is expired or will expire
// within the given margin. The margin accounts for clock skew and the
// latency of the outbound call the token is about to authorize.
func (r *Record) IsExpired(margin time.Duration) bool {
	return !time.Now().Add(margin).Before(r.ExpiresAt)
}
