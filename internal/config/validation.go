package config

import (
	"fmt"
	"net/url"

	"tokend/internal/credential"
)

// Validate checks that the configuration is internally consistent and
// complete enough to start the service.
func Validate(config Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", config.Server.Port)
	}
	if _, err := url.ParseRequestURI(config.Server.PublicURL); err != nil {
		return fmt.Errorf("server.publicURL is not a valid URL: %w", err)
	}

	switch config.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if config.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required when storage.driver is %q", StorageDriverPostgres)
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q",
			StorageDriverPostgres, StorageDriverMemory, config.Storage.Driver)
	}

	if config.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rateLimit.maxRequests must be positive, got %d", config.RateLimit.MaxRequests)
	}
	if config.RateLimit.Window <= 0 {
		return fmt.Errorf("rateLimit.window must be positive, got %v", config.RateLimit.Window)
	}

	if len(config.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	for name, pc := range config.Providers {
		if _, err := credential.ParseProvider(name); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
		if pc.ClientID == "" {
			return fmt.Errorf("providers.%s.clientId is required", name)
		}
		if pc.ClientSecret == "" {
			return fmt.Errorf("providers.%s.clientSecret is required (config or TOKEND_%s_CLIENT_SECRET)", name, toEnvName(name))
		}
		if _, err := url.ParseRequestURI(pc.AuthURL); err != nil {
			return fmt.Errorf("providers.%s.authUrl is not a valid URL: %w", name, err)
		}
		if _, err := url.ParseRequestURI(pc.TokenURL); err != nil {
			return fmt.Errorf("providers.%s.tokenUrl is not a valid URL: %w", name, err)
		}
	}

	return nil
}
