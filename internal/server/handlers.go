package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tokend/internal/credential"
	"tokend/internal/flow"
	"tokend/internal/metrics"
	"tokend/internal/provider"
	"tokend/internal/token"
	"tokend/pkg/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status        flow.Status `json:"status"`
	HasValidToken bool        `json:"hasValidToken"`
	ExpiresAt     *time.Time  `json:"expiresAt,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("HTTP", err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// providerParam parses the {provider} path segment.
func providerParam(r *http.Request) (credential.Provider, error) {
	return credential.ParseProvider(chi.URLParam(r, "provider"))
}

// clientIdentity derives the rate-limit key for a request. X-Forwarded-For
// is honored only when configured, and only its left-most hop; trusting the
// raw header would let a direct client pick a fresh limit key per request.
func (s *Server) clientIdentity(r *http.Request) string {
	if s.trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAuthorize starts an authorization flow and redirects the caller to
// the provider's consent page.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.limiter.Allow(r.Context(), s.clientIdentity(r), "authorize") {
		metrics.RateLimited.Inc()
		writeError(w, http.StatusTooManyRequests, "too many authorization attempts, try again later")
		return
	}

	tenantKey := r.URL.Query().Get("tenant")
	authURL, err := s.flows.BeginAuthorization(r.Context(), tenantKey, p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback completes an authorization flow with the code and state
// the provider sent back.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if err := s.flows.HandleCallback(r.Context(), p, code, state); err != nil {
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// handleStatus reports the stored authorization status of a pair without
// contacting the provider.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenantKey := chi.URLParam(r, "tenantKey")

	status, err := s.flows.Status(r.Context(), tenantKey, p)
	if errors.Is(err, credential.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: flow.StatusNotAuthenticated})
		return
	}
	if err != nil {
		writeStorageOrBadRequest(w, err)
		return
	}

	resp := statusResponse{Status: status, HasValidToken: status == flow.StatusAuthenticated}
	if expiresAt, err := s.flows.ExpiresAt(r.Context(), tenantKey, p); err == nil {
		resp.ExpiresAt = &expiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh forces a refresh regardless of the stored expiry.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenantKey := chi.URLParam(r, "tenantKey")

	if err := s.tokens.ForceRefresh(r.Context(), tenantKey, p); err != nil {
		if errors.Is(err, credential.ErrNotFound) || errors.Is(err, token.ErrUnauthenticated) {
			writeError(w, http.StatusNotFound, "no credential stored for tenant")
			return
		}
		writeFlowError(w, err)
		return
	}

	resp := statusResponse{Status: flow.StatusAuthenticated, HasValidToken: true}
	if expiresAt, err := s.flows.ExpiresAt(r.Context(), tenantKey, p); err == nil {
		resp.ExpiresAt = &expiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeFlowError maps flow and provider failures onto HTTP statuses:
// invalid state is the caller's fault (400), a permanent provider
// rejection means the grant is bad (401), a transient provider failure is
// an upstream problem (502), and storage failures are ours (500).
func writeFlowError(w http.ResponseWriter, err error) {
	var stateErr *flow.InvalidStateError
	if errors.As(err, &stateErr) {
		writeError(w, http.StatusBadRequest, stateErr.Error())
		return
	}

	var provErr *provider.Error
	if errors.As(err, &provErr) {
		if provErr.Transient {
			writeError(w, http.StatusBadGateway, "provider temporarily unavailable")
			return
		}
		writeError(w, http.StatusUnauthorized, "provider rejected the request")
		return
	}

	writeStorageOrBadRequest(w, err)
}

func writeStorageOrBadRequest(w http.ResponseWriter, err error) {
	var storageErr *credential.StorageError
	if errors.As(err, &storageErr) {
		logging.Error("HTTP", err, "Storage failure")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
