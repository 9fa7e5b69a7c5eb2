package config

import "time"

// Config is the top-level configuration structure for tokend.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Storage   StorageConfig             `yaml:"storage"`
	Redis     RedisConfig               `yaml:"redis"`
	RateLimit RateLimitConfig           `yaml:"rateLimit"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig defines how the HTTP API binds and presents itself.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind to (default: localhost)
	Port int    `yaml:"port,omitempty"` // Port for the HTTP API (default: 8090)

	// PublicURL is the externally reachable base URL used to build OAuth
	// callback URIs. It must match what is registered with the providers.
	PublicURL string `yaml:"publicURL,omitempty"`

	// TrustForwardedFor rate-limits on the left-most X-Forwarded-For hop
	// instead of the peer address. Enable only behind a proxy that
	// overwrites the header, otherwise clients pick their own limit key.
	TrustForwardedFor bool `yaml:"trustForwardedFor,omitempty"`
}

// StorageDriver selects the credential store backend.
type StorageDriver string

const (
	StorageDriverPostgres StorageDriver = "postgres"
	StorageDriverMemory   StorageDriver = "memory"
)

// StorageConfig defines where credential records are persisted.
type StorageConfig struct {
	Driver StorageDriver `yaml:"driver,omitempty"` // postgres or memory (default: memory)
	DSN    string        `yaml:"dsn,omitempty"`    // Postgres connection string
}

// RedisConfig defines the Redis connection backing the rate limiter.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"` // host:port; empty disables rate limiting
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// RateLimitConfig bounds authorization attempts per client identity.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"maxRequests,omitempty"` // default: 5
	Window      time.Duration `yaml:"window,omitempty"`      // default: 60s
}

// ProviderConfig holds the OAuth2 client registration for one provider.
type ProviderConfig struct {
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret,omitempty"` // May be set via TOKEND_<PROVIDER>_CLIENT_SECRET
	AuthURL      string   `yaml:"authUrl"`
	TokenURL     string   `yaml:"tokenUrl"`
	Scopes       []string `yaml:"scopes,omitempty"`
}
