package provider

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"tokend/internal/credential"
	"tokend/pkg/logging"
)

// Timeouts for outbound provider calls: short connect, moderate overall.
// There is no retry loop; a single failed call surfaces immediately.
const (
	connectTimeout = 5 * time.Second
	requestTimeout = 15 * time.Second
)

// maxResponseBody caps how much of a provider error body is retained for
// classification and logging.
const maxResponseBody = 8 << 10

// Config holds the per-provider settings needed to drive the
// authorization-code grant.
type Config struct {
	Provider     credential.Provider
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// EndpointAdapter implements Adapter for any OAuth2 provider exposing the
// standard authorization and token endpoints. Both exchanges are a single
// form POST; the response expiry is normalized from either an expires_in
// delta or the exp claim of a JWT access token.
type EndpointAdapter struct {
	cfg        Config
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ Adapter = (*EndpointAdapter)(nil)

// New creates an adapter for the given provider configuration.
func New(cfg Config) *EndpointAdapter {
	return &EndpointAdapter{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// Name identifies the provider this adapter serves.
func (a *EndpointAdapter) Name() credential.Provider {
	return a.cfg.Provider
}

// AuthCodeURL builds the provider consent URL for the given state and
// redirect URI.
func (a *EndpointAdapter) AuthCodeURL(state, redirectURI string) string {
	oc := oauth2.Config{
		ClientID:     a.cfg.ClientID,
		ClientSecret: a.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       a.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.cfg.AuthURL,
			TokenURL: a.cfg.TokenURL,
		},
	}
	return oc.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens.
func (a *EndpointAdapter) ExchangeCode(ctx context.Context, code, redirectURI string) (Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)

	tok, err := a.postTokenEndpoint(ctx, data)
	if err != nil {
		return Token{}, err
	}

	logging.Debug("Provider", "Exchanged code for token (provider=%s, expires: %v)",
		a.cfg.Provider, tok.ExpiresAt)
	return tok, nil
}

// ExchangeRefreshToken exchanges a refresh token for new tokens. When the
// provider does not rotate the refresh token, the previous one is carried
// over so it is never discarded on a routine refresh.
func (a *EndpointAdapter) ExchangeRefreshToken(ctx context.Context, refreshToken string) (Token, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	tok, err := a.postTokenEndpoint(ctx, data)
	if err != nil {
		return Token{}, err
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	logging.Debug("Provider", "Refreshed token (provider=%s, expires: %v)",
		a.cfg.Provider, tok.ExpiresAt)
	return tok, nil
}

// tokenResponse is the wire shape of a token-endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// postTokenEndpoint performs one form POST with client credentials and maps
// the response into a normalized Token.
func (a *EndpointAdapter) postTokenEndpoint(ctx context.Context, data url.Values) (Token, error) {
	data.Set("client_id", a.cfg.ClientID)
	data.Set("client_secret", a.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Token{}, &Error{Provider: a.cfg.Provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Token{}, &Error{Provider: a.cfg.Provider, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Token{}, &Error{Provider: a.cfg.Provider, Transient: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Log the body for debugging but keep it out of the error message:
		// provider error descriptions can carry sensitive hints.
		logging.Debug("Provider", "Token endpoint failed: provider=%s status=%d body=%s",
			a.cfg.Provider, resp.StatusCode, string(body))
		return Token{}, &Error{
			Provider:   a.cfg.Provider,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Transient:  resp.StatusCode >= 500,
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, &Error{Provider: a.cfg.Provider, Err: err}
	}
	if tr.AccessToken == "" {
		return Token{}, &Error{Provider: a.cfg.Provider, Err: errMissingAccessToken}
	}

	expiresAt, err := resolveExpiry(tr.AccessToken, tr.ExpiresIn)
	if err != nil {
		return Token{}, &Error{Provider: a.cfg.Provider, Err: err}
	}

	return Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
