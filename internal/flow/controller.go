// Package flow drives the three-step OAuth2 authorization-code dance:
// redirect the user to the provider's consent page, receive the callback
// carrying code and state, exchange the code and persist the credential.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tokend/internal/credential"
	"tokend/internal/provider"
	"tokend/pkg/logging"
)

// InvalidStateError indicates a callback whose state parameter did not
// match one issued by BeginAuthorization (CSRF, expiry, or replay). The
// flow attempt is terminal; no storage write happens.
type InvalidStateError struct {
	Reason string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return "invalid authorization state: " + e.Reason
}

// Status is the derived authorization status of a (tenant, provider) pair.
type Status string

const (
	StatusNotAuthenticated Status = "not_authenticated"
	StatusAuthenticated    Status = "authenticated"
	StatusExpired          Status = "expired"
)

// Controller drives authorization flows and derives their status.
type Controller struct {
	store     credential.Store
	providers *provider.Registry
	states    *StateStore

	// publicURL is the externally reachable base URL of this service, used
	// to compute per-provider callback URIs.
	publicURL string
}

// NewController creates a flow controller.
func NewController(store credential.Store, providers *provider.Registry, states *StateStore, publicURL string) *Controller {
	return &Controller{
		store:     store,
		providers: providers,
		states:    states,
		publicURL: publicURL,
	}
}

// RedirectURI returns the callback URI registered with the given provider.
func (c *Controller) RedirectURI(p credential.Provider) string {
	return strings.TrimSuffix(c.publicURL, "/") + "/auth/" + string(p) + "/callback"
}

// BeginAuthorization starts an authorization flow for the tenant and
// returns the provider consent URL the caller should redirect to.
func (c *Controller) BeginAuthorization(ctx context.Context, tenantKey string, p credential.Provider) (string, error) {
	if err := credential.ValidateTenantKey(tenantKey); err != nil {
		return "", fmt.Errorf("invalid tenant key: %w", err)
	}

	adapter, err := c.providers.Get(p)
	if err != nil {
		return "", err
	}

	redirectURI := c.RedirectURI(p)
	state, err := c.states.GenerateState(tenantKey, p, redirectURI)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	authURL := adapter.AuthCodeURL(state, redirectURI)
	logging.Info("AuthFlow", "Began authorization for tenant=%s provider=%s",
		logging.TruncateKey(tenantKey), p)
	return authURL, nil
}

// HandleCallback completes an authorization flow: it validates the state,
// exchanges the code, and persists the credential record. An invalid,
// expired, or replayed state, or a state issued for a different provider
// than p, returns *InvalidStateError with no storage write.
func (c *Controller) HandleCallback(ctx context.Context, p credential.Provider, code, encodedState string) error {
	if code == "" {
		return &InvalidStateError{Reason: "missing code parameter"}
	}
	if encodedState == "" {
		return &InvalidStateError{Reason: "missing state parameter"}
	}

	state := c.states.ValidateState(encodedState)
	if state == nil {
		return &InvalidStateError{Reason: "state unknown, expired, or already used"}
	}
	if state.Provider != p {
		return &InvalidStateError{Reason: "state was issued for a different provider"}
	}

	adapter, err := c.providers.Get(state.Provider)
	if err != nil {
		return err
	}

	// The exchange repeats the redirect URI the consent page was given;
	// it comes from this flow's record, never from shared mutable state.
	tok, err := adapter.ExchangeCode(ctx, code, state.RedirectURI)
	if err != nil {
		logging.Warn("AuthFlow", "Code exchange failed for tenant=%s provider=%s: %v",
			logging.TruncateKey(state.TenantKey), state.Provider, err)
		return err
	}

	rec := credential.Record{
		TenantKey:    state.TenantKey,
		Provider:     state.Provider,
		AccessToken:  credential.NewRedactedToken(tok.AccessToken),
		RefreshToken: credential.NewRedactedToken(tok.RefreshToken),
		ExpiresAt:    tok.ExpiresAt,
	}
	if err := c.store.Upsert(ctx, rec); err != nil {
		return err
	}

	logging.Info("AuthFlow", "Authenticated tenant=%s with provider=%s (expires: %v)",
		logging.TruncateKey(state.TenantKey), state.Provider, tok.ExpiresAt)
	return nil
}

// Status derives the authorization status of a pair by reading the stored
// record and comparing its expiry to now. No network call is made. When no
// record exists, StatusNotAuthenticated is returned along with
// credential.ErrNotFound so HTTP callers can distinguish 404.
func (c *Controller) Status(ctx context.Context, tenantKey string, p credential.Provider) (Status, error) {
	if err := credential.ValidateTenantKey(tenantKey); err != nil {
		return StatusNotAuthenticated, fmt.Errorf("invalid tenant key: %w", err)
	}

	rec, err := c.store.Get(ctx, tenantKey, p)
	if errors.Is(err, credential.ErrNotFound) {
		return StatusNotAuthenticated, err
	}
	if err != nil {
		return StatusNotAuthenticated, err
	}

	if rec.IsExpired(0) {
		return StatusExpired, nil
	}
	return StatusAuthenticated, nil
}

// ExpiresAt returns the stored expiry for a pair, for status reporting.
func (c *Controller) ExpiresAt(ctx context.Context, tenantKey string, p credential.Provider) (time.Time, error) {
	rec, err := c.store.Get(ctx, tenantKey, p)
	if err != nil {
		return time.Time{}, err
	}
	return rec.ExpiresAt, nil
}
