package flow

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"tokend/internal/credential"
	"tokend/pkg/logging"
)

// AuthState is the server-side record of one in-flight authorization. It is
// created by BeginAuthorization and consumed by the callback. The redirect
// URI is carried here, per flow, so concurrent authorizations for different
// tenants can never interfere through shared state.
type AuthState struct {
	// TenantKey is the tenant this flow authorizes.
	TenantKey string `json:"tenant_key"`

	// Provider is the provider being authorized against.
	Provider credential.Provider `json:"provider"`

	// Nonce is a random value for CSRF protection.
	Nonce string `json:"nonce"`

	// RedirectURI is the callback URI passed to the provider's consent
	// page; the code exchange must repeat it verbatim.
	RedirectURI string `json:"redirect_uri"`

	// CreatedAt is when the state was created (for expiration).
	CreatedAt time.Time `json:"created_at"`
}

// StateStore provides thread-safe storage for authorization state
// parameters. State parameters link provider callbacks to the flow that
// issued them and provide CSRF protection.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]*AuthState

	// Expiration configuration
	stateExpiry time.Duration
	stopCleanup chan struct{}
}

// NewStateStore creates a new state store with default expiration.
func NewStateStore() *StateStore {
	ss := &StateStore{
		states:      make(map[string]*AuthState),
		stateExpiry: 10 * time.Minute, // State expires after 10 minutes
		stopCleanup: make(chan struct{}),
	}

	// Start background cleanup
	go ss.cleanupLoop()

	return ss
}

// GenerateState creates a new state parameter for the given flow and stores
// it. Returns the encoded state string to include in the authorization URL.
func (ss *StateStore) GenerateState(tenantKey string, provider credential.Provider, redirectURI string) (string, error) {
	// Generate a cryptographically random nonce
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	state := &AuthState{
		TenantKey:   tenantKey,
		Provider:    provider,
		Nonce:       base64.URLEncoding.EncodeToString(nonce),
		RedirectURI: redirectURI,
		CreatedAt:   time.Now(),
	}

	// Encode the state as JSON then base64
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", err
	}

	encodedState := base64.URLEncoding.EncodeToString(stateJSON)

	// Store the state indexed by the nonce
	ss.mu.Lock()
	ss.states[state.Nonce] = state
	ss.mu.Unlock()

	logging.Debug("AuthFlow", "Generated state for tenant=%s provider=%s",
		logging.TruncateKey(tenantKey), provider)
	return encodedState, nil
}

// ValidateState validates a state parameter from a callback. Returns the
// original flow state if valid, nil if unknown, expired, or already used.
// A valid state is consumed so it cannot be replayed.
func (ss *StateStore) ValidateState(encodedState string) *AuthState {
	// Decode the state
	stateJSON, err := base64.URLEncoding.DecodeString(encodedState)
	if err != nil {
		logging.Warn("AuthFlow", "Failed to decode state: %v", err)
		return nil
	}

	var state AuthState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		logging.Warn("AuthFlow", "Failed to unmarshal state: %v", err)
		return nil
	}

	// Look up the stored state by nonce
	ss.mu.RLock()
	storedState, exists := ss.states[state.Nonce]
	ss.mu.RUnlock()

	if !exists {
		logging.Warn("AuthFlow", "State not found in store")
		return nil
	}

	// Check expiration
	if time.Since(storedState.CreatedAt) > ss.stateExpiry {
		logging.Warn("AuthFlow", "State expired: age=%v", time.Since(storedState.CreatedAt))
		ss.Delete(state.Nonce)
		return nil
	}

	// State is valid - delete it to prevent replay
	ss.Delete(state.Nonce)

	return storedState
}

// Delete removes a state from the store.
func (ss *StateStore) Delete(nonce string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.states, nonce)
}

// Stop stops the background cleanup goroutine.
func (ss *StateStore) Stop() {
	close(ss.stopCleanup)
}

// cleanupLoop periodically removes expired states from the store.
func (ss *StateStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.cleanup()
		case <-ss.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired states from the store.
func (ss *StateStore) cleanup() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	count := 0
	for nonce, state := range ss.states {
		if time.Since(state.CreatedAt) > ss.stateExpiry {
			delete(ss.states, nonce)
			count++
		}
	}

	if count > 0 {
		logging.Debug("AuthFlow", "Cleaned up %d expired states", count)
	}
}
