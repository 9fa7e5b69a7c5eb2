package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := GetDefaultConfig()
	cfg.Providers = map[string]ProviderConfig{
		"providera": {
			ClientID:     "client-a",
			ClientSecret: "secret-a",
			AuthURL:      "https://a.example.com/authorize",
			TokenURL:     "https://a.example.com/token",
		},
	}
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "bad public URL",
			mutate:  func(c *Config) { c.Server.PublicURL = "not a url" },
			wantErr: "server.publicURL",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "etcd" },
			wantErr: "storage.driver",
		},
		{
			name: "postgres without DSN",
			mutate: func(c *Config) {
				c.Storage.Driver = StorageDriverPostgres
				c.Storage.DSN = ""
			},
			wantErr: "storage.dsn",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimit.MaxRequests = 0 },
			wantErr: "rateLimit.maxRequests",
		},
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Providers = nil },
			wantErr: "at least one provider",
		},
		{
			name: "unknown provider name",
			mutate: func(c *Config) {
				c.Providers["bogus"] = c.Providers["providera"]
			},
			wantErr: "providers.bogus",
		},
		{
			name: "missing client secret",
			mutate: func(c *Config) {
				pc := c.Providers["providera"]
				pc.ClientSecret = ""
				c.Providers["providera"] = pc
			},
			wantErr: "clientSecret",
		},
		{
			name: "bad token URL",
			mutate: func(c *Config) {
				pc := c.Providers["providera"]
				pc.TokenURL = "::nope"
				c.Providers["providera"] = pc
			},
			wantErr: "tokenUrl",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := Validate(cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
