package config

import "time"

// GetDefaultConfig returns the default configuration for tokend.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:      "localhost",
			Port:      8090,
			PublicURL: "http://localhost:8090",
		},
		Storage: StorageConfig{
			Driver: StorageDriverMemory,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 5,
			Window:      60 * time.Second,
		},
		Providers: map[string]ProviderConfig{},
	}
}
