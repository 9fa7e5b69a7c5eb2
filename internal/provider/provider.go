// Package provider encapsulates the two HTTP calls every OAuth2
// authorization-code provider needs: exchanging an authorization code for
// tokens and exchanging a refresh token for new tokens.
//
// Adapters normalize provider-shaped responses into the same
// (accessToken, refreshToken, expiresAt) tuple regardless of whether the
// provider reports expiry as an expires_in delta or embeds it as the exp
// claim of a JWT access token. Callers never know which shape they got.
//
// Adapters perform no retries; retry policy belongs to the token manager.
package provider

import (
	"context"
	"fmt"
	"time"

	"tokend/internal/credential"
)

// Token is the normalized result of a code or refresh exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Error carries the classification of a failed provider call.
//
// Transient errors (network failures, provider 5xx) may succeed on a later
// attempt; permanent errors (provider 4xx, malformed responses) will not.
type Error struct {
	Provider   credential.Provider
	StatusCode int
	Body       string
	Transient  bool
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s error: status %d", e.Provider, kind, e.StatusCode)
	}
	return fmt.Sprintf("provider %s: %s error: %v", e.Provider, kind, e.Err)
}

// Unwrap returns the underlying transport or decode error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Adapter is the per-provider capability used by the flow controller and
// the token manager.
type Adapter interface {
	// Name identifies the provider this adapter serves.
	Name() credential.Provider

	// AuthCodeURL builds the consent-page URL carrying the given CSRF state
	// and redirect URI.
	AuthCodeURL(state, redirectURI string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error)

	// ExchangeRefreshToken exchanges a refresh token for new tokens. The
	// returned Token carries the previous refresh token when the provider
	// did not rotate it.
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (Token, error)
}

// Registry resolves adapters by provider name.
type Registry struct {
	adapters map[credential.Provider]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[credential.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter for the provider, or an error for providers that
// are not configured.
func (r *Registry) Get(p credential.Provider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("no adapter configured for provider %q", p)
	}
	return a, nil
}
