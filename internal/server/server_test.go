package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"tokend/internal/credential"
	"tokend/internal/flow"
	"tokend/internal/provider"
	"tokend/internal/ratelimit"
	"tokend/internal/token"
)

// stubAdapter is a canned provider.Adapter for exercising handlers without
// outbound HTTP.
type stubAdapter struct {
	name       credential.Provider
	token      provider.Token
	codeErr    error
	refreshErr error
}

func (s *stubAdapter) Name() credential.Provider { return s.name }

func (s *stubAdapter) AuthCodeURL(state, redirectURI string) string {
	return "https://auth.example.com/authorize?state=" + url.QueryEscape(state) +
		"&redirect_uri=" + url.QueryEscape(redirectURI)
}

func (s *stubAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (provider.Token, error) {
	if s.codeErr != nil {
		return provider.Token{}, s.codeErr
	}
	return s.token, nil
}

func (s *stubAdapter) ExchangeRefreshToken(ctx context.Context, refreshToken string) (provider.Token, error) {
	if s.refreshErr != nil {
		return provider.Token{}, s.refreshErr
	}
	return s.token, nil
}

type testEnv struct {
	server  *Server
	store   *credential.MemoryStore
	states  *flow.StateStore
	adapter *stubAdapter
}

func newTestEnv(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()

	adapter := &stubAdapter{
		name: credential.ProviderA,
		token: provider.Token{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
	store := credential.NewMemoryStore()
	states := flow.NewStateStore()
	t.Cleanup(states.Stop)

	registry := provider.NewRegistry(adapter)
	flows := flow.NewController(store, registry, states, "https://backend.example.com")
	tokens := token.NewManager(store, registry)

	return &testEnv{
		server:  New("localhost:0", flows, tokens, limiter, false),
		store:   store,
		states:  states,
		adapter: adapter,
	}
}

func (e *testEnv) do(method, target string) *httptest.ResponseRecorder {
	return e.doForwarded(method, target, "")
}

func (e *testEnv) doForwarded(method, target, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:54321"
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// beginFlow drives the authorize endpoint and extracts the issued state
// from the redirect.
func beginFlow(t *testing.T, env *testEnv) string {
	t.Helper()
	rec := env.do(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1")
	if rec.Code != http.StatusFound {
		t.Fatalf("Expected 302 from authorize, got %d: %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Redirect location does not parse: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("Redirect location carries no state")
	}
	return state
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestAuthorizeRedirectsToConsentPage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1")
	if rec.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d: %s", rec.Code, rec.Body.String())
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Location does not parse: %v", err)
	}
	if loc.Host != "auth.example.com" {
		t.Errorf("Expected redirect to provider, got %q", loc.Host)
	}
	if got := loc.Query().Get("redirect_uri"); got != "https://backend.example.com/auth/providera/callback" {
		t.Errorf("Unexpected redirect_uri: %q", got)
	}
}

func TestAuthorizeRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		target string
	}{
		{"missing tenant", "/auth/providera/authorize"},
		{"whitespace tenant", "/auth/providera/authorize?tenant=a%20b"},
		{"unknown provider", "/auth/nope/authorize?tenant=tenant-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tc.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}
}

type stubCounter struct {
	counts map[string]int64
}

func (c *stubCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

func TestAuthorizeIsRateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiter(&stubCounter{}, 2, time.Minute)
	env := newTestEnv(t, limiter)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1")
		if rec.Code != http.StatusFound {
			t.Fatalf("Request %d: expected 302, got %d", i+1, rec.Code)
		}
	}

	rec := env.do(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after limit, got %d", rec.Code)
	}
}

func TestForwardedForIsIgnoredByDefault(t *testing.T) {
	limiter := ratelimit.NewLimiter(&stubCounter{}, 2, time.Minute)
	env := newTestEnv(t, limiter)

	// A direct client rotating X-Forwarded-For must not escape the limit.
	headers := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for i, fwd := range headers {
		rec := env.doForwarded(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1", fwd)
		if i < 2 && rec.Code != http.StatusFound {
			t.Fatalf("Request %d: expected 302, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("Request %d: expected 429 despite rotated header, got %d", i+1, rec.Code)
		}
	}
}

func TestForwardedForUsesLeftmostHopWhenTrusted(t *testing.T) {
	limiter := ratelimit.NewLimiter(&stubCounter{}, 1, time.Minute)
	env := newTestEnv(t, limiter)
	env.server.trustForwardedFor = true

	// Same origin client through varying proxy chains: one key.
	rec := env.doForwarded(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1", "203.0.113.9, 10.0.0.1")
	if rec.Code != http.StatusFound {
		t.Fatalf("Expected 302, got %d", rec.Code)
	}
	rec = env.doForwarded(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1", "203.0.113.9, 10.0.0.2")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for same left-most hop, got %d", rec.Code)
	}

	// A different origin client gets its own window.
	rec = env.doForwarded(http.MethodGet, "/auth/providera/authorize?tenant=tenant-1", "203.0.113.10, 10.0.0.1")
	if rec.Code != http.StatusFound {
		t.Errorf("Expected 302 for different client, got %d", rec.Code)
	}
}

func TestCallbackCompletesFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	state := beginFlow(t, env)

	rec := env.do(http.MethodGet, "/auth/providera/callback?code=auth-code&state="+url.QueryEscape(state))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if body["status"] != "success" {
		t.Errorf("Expected success status, got %q", body["status"])
	}

	if _, err := env.store.Get(context.Background(), "tenant-1", credential.ProviderA); err != nil {
		t.Errorf("Expected stored credential after callback: %v", err)
	}
}

func TestCallbackRejectsInvalidState(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/auth/providera/callback?code=auth-code&state=forged")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
	if env.store.Count() != 0 {
		t.Errorf("Expected no stored records, got %d", env.store.Count())
	}
}

func TestCallbackRejectsWrongProviderPath(t *testing.T) {
	env := newTestEnv(t, nil)
	state := beginFlow(t, env)

	rec := env.do(http.MethodGet, "/auth/providerb/callback?code=auth-code&state="+url.QueryEscape(state))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for mismatched provider path, got %d", rec.Code)
	}
	if env.store.Count() != 0 {
		t.Errorf("Expected no stored records, got %d", env.store.Count())
	}
}

func TestCallbackMapsProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *provider.Error
		wantStatus int
	}{
		{
			name:       "permanent rejection",
			err:        &provider.Error{Provider: credential.ProviderA, StatusCode: 400},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "transient failure",
			err:        &provider.Error{Provider: credential.ProviderA, StatusCode: 503, Transient: true},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			state := beginFlow(t, env)
			env.adapter.codeErr = tc.err

			rec := env.do(http.MethodGet, "/auth/providera/callback?code=bad-code&state="+url.QueryEscape(state))
			if rec.Code != tc.wantStatus {
				t.Errorf("Expected %d, got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/auth/providera/status/tenant-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 with no record, got %d", rec.Code)
	}
	var notFound statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &notFound); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if notFound.Status != flow.StatusNotAuthenticated {
		t.Errorf("Expected %q, got %q", flow.StatusNotAuthenticated, notFound.Status)
	}

	expiry := time.Now().Add(time.Hour).UTC()
	rec2 := credential.Record{
		TenantKey:   "tenant-1",
		Provider:    credential.ProviderA,
		AccessToken: credential.NewRedactedToken("access-1"),
		ExpiresAt:   expiry,
	}
	if err := env.store.Upsert(context.Background(), rec2); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	recOK := env.do(http.MethodGet, "/auth/providera/status/tenant-1")
	if recOK.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recOK.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(recOK.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if body.Status != flow.StatusAuthenticated || !body.HasValidToken {
		t.Errorf("Unexpected status body: %+v", body)
	}
	if body.ExpiresAt == nil || !body.ExpiresAt.Equal(expiry) {
		t.Errorf("Expected expiresAt %v, got %v", expiry, body.ExpiresAt)
	}
}

func TestStatusReportsExpired(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := credential.Record{
		TenantKey:   "tenant-1",
		Provider:    credential.ProviderA,
		AccessToken: credential.NewRedactedToken("access-1"),
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	if err := env.store.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	resp := env.do(http.MethodGet, "/auth/providera/status/tenant-1")
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON: %v", err)
	}
	if body.Status != flow.StatusExpired || body.HasValidToken {
		t.Errorf("Unexpected status body: %+v", body)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	// No record yet.
	rec := env.do(http.MethodPost, "/auth/providera/refresh/tenant-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 with no record, got %d", rec.Code)
	}

	stored := credential.Record{
		TenantKey:    "tenant-1",
		Provider:     credential.ProviderA,
		AccessToken:  credential.NewRedactedToken("old-access"),
		RefreshToken: credential.NewRedactedToken("old-refresh"),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := env.store.Upsert(context.Background(), stored); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	recOK := env.do(http.MethodPost, "/auth/providera/refresh/tenant-1")
	if recOK.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recOK.Code, recOK.Body.String())
	}

	got, err := env.store.Get(context.Background(), "tenant-1", credential.ProviderA)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccessToken.Value() != "access-1" {
		t.Error("Expected access token to be replaced by forced refresh")
	}
}

func TestRefreshMapsTransientProviderError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.adapter.refreshErr = &provider.Error{Provider: credential.ProviderA, StatusCode: 500, Transient: true}

	stored := credential.Record{
		TenantKey:    "tenant-1",
		Provider:     credential.ProviderA,
		AccessToken:  credential.NewRedactedToken("old-access"),
		RefreshToken: credential.NewRedactedToken("old-refresh"),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := env.store.Upsert(context.Background(), stored); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := env.do(http.MethodPost, "/auth/providera/refresh/tenant-1")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}

	got, _ := env.store.Get(context.Background(), "tenant-1", credential.ProviderA)
	if got.AccessToken.Value() != "old-access" {
		t.Error("Failed refresh must not mutate the stored record")
	}
}
