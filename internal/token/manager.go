// Package token implements the credential lifecycle orchestrator. On every
// request for a usable token it inspects the stored record, refreshes
// through the provider adapter when the token is expired or about to
// expire, persists the result, and returns a token guaranteed valid at the
// time of return.
//
// There is deliberately no proactive or background refresh: refresh happens
// lazily on demand, bounded by one extra outbound call whenever the first
// request after expiry arrives.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"tokend/internal/credential"
	"tokend/internal/metrics"
	"tokend/internal/provider"
	"tokend/pkg/logging"
)

// ErrUnauthenticated is returned when no credential is on file for the
// requested (tenant, provider) pair: the caller must drive the
// authorization flow before asking for tokens.
var ErrUnauthenticated = errors.New("tenant is not authenticated with provider")

// expiryMargin is applied when deciding whether a stored token is still
// usable. It accounts for clock skew and the latency of the call the token
// is about to authorize.
const expiryMargin = 30 * time.Second

// Manager coordinates reads, refreshes and writes of credential records.
type Manager struct {
	store     credential.Store
	providers *provider.Registry

	// refreshGroup deduplicates concurrent refreshes per (tenant, provider)
	// key, so simultaneous expired reads cost one outbound exchange instead
	// of racing duplicates. Duplicate refreshes are benign either way (the
	// store write is atomic, last writer wins), this just avoids the
	// redundant provider call.
	refreshGroup singleflight.Group
}

// NewManager creates a manager over the given store and provider registry.
func NewManager(store credential.Store, providers *provider.Registry) *Manager {
	return &Manager{
		store:     store,
		providers: providers,
	}
}

// GetValidToken returns an access token guaranteed valid at time of return.
//
// The common path is cheap: a stored, unexpired record returns immediately
// with no network call. An expired (or nearly expired) record triggers one
// refresh exchange; the refreshed record is persisted before the token is
// returned. A missing record returns ErrUnauthenticated. A failed refresh
// surfaces the provider error and leaves the stored record untouched, so a
// later call retries instead of being stuck.
func (m *Manager) GetValidToken(ctx context.Context, tenantKey string, p credential.Provider) (string, error) {
	if err := credential.ValidateTenantKey(tenantKey); err != nil {
		return "", fmt.Errorf("invalid tenant key: %w", err)
	}

	rec, err := m.store.Get(ctx, tenantKey, p)
	if errors.Is(err, credential.ErrNotFound) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", err
	}

	if !rec.IsExpired(expiryMargin) {
		metrics.TokenServes.WithLabelValues(string(p), "cached").Inc()
		return rec.AccessToken.Value(), nil
	}

	refreshed, err := m.refresh(ctx, tenantKey, p, false)
	if err != nil {
		return "", err
	}

	metrics.TokenServes.WithLabelValues(string(p), "refreshed").Inc()
	return refreshed.AccessToken.Value(), nil
}

// ForceRefresh performs the refresh exchange regardless of expiry. It is an
// explicit administrative trigger; credential.ErrNotFound is returned when
// no record exists.
func (m *Manager) ForceRefresh(ctx context.Context, tenantKey string, p credential.Provider) error {
	if err := credential.ValidateTenantKey(tenantKey); err != nil {
		return fmt.Errorf("invalid tenant key: %w", err)
	}

	_, err := m.refresh(ctx, tenantKey, p, true)
	return err
}

// refresh runs the read-exchange-write sequence inside a singleflight per
// (tenant, provider) key. Unless forced, the record is re-read inside the
// flight so a caller that lost the race to a just-finished refresh reuses
// its result without another exchange.
func (m *Manager) refresh(ctx context.Context, tenantKey string, p credential.Provider, force bool) (credential.Record, error) {
	flightKey := tenantKey + "|" + string(p)

	result, err, _ := m.refreshGroup.Do(flightKey, func() (interface{}, error) {
		rec, err := m.store.Get(ctx, tenantKey, p)
		if err != nil {
			return credential.Record{}, err
		}

		if !force && !rec.IsExpired(expiryMargin) {
			return rec, nil
		}

		return m.doRefresh(ctx, rec)
	})
	if err != nil {
		return credential.Record{}, err
	}
	return result.(credential.Record), nil
}

// doRefresh performs one refresh exchange and persists the result. On
// adapter failure the stored record is not mutated.
func (m *Manager) doRefresh(ctx context.Context, rec credential.Record) (credential.Record, error) {
	adapter, err := m.providers.Get(rec.Provider)
	if err != nil {
		return credential.Record{}, err
	}

	tok, err := adapter.ExchangeRefreshToken(ctx, rec.RefreshToken.Value())
	if err != nil {
		metrics.RefreshAttempts.WithLabelValues(string(rec.Provider), "provider_error").Inc()
		logging.Warn("TokenManager", "Refresh failed for tenant=%s provider=%s: %v",
			logging.TruncateKey(rec.TenantKey), rec.Provider, err)
		return credential.Record{}, err
	}

	refreshed := credential.Record{
		TenantKey:    rec.TenantKey,
		Provider:     rec.Provider,
		AccessToken:  credential.NewRedactedToken(tok.AccessToken),
		RefreshToken: credential.NewRedactedToken(tok.RefreshToken),
		ExpiresAt:    tok.ExpiresAt,
		CreatedAt:    rec.CreatedAt,
	}

	if err := m.store.Upsert(ctx, refreshed); err != nil {
		metrics.RefreshAttempts.WithLabelValues(string(rec.Provider), "storage_error").Inc()
		return credential.Record{}, err
	}

	metrics.RefreshAttempts.WithLabelValues(string(rec.Provider), "success").Inc()
	logging.Info("TokenManager", "Refreshed token for tenant=%s provider=%s (expires: %v)",
		logging.TruncateKey(rec.TenantKey), rec.Provider, tok.ExpiresAt)
	return refreshed, nil
}
