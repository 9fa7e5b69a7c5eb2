package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tokend/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/tokend"
	configFileName = "config.yaml"

	envPrefix = "TOKEND_"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory. The directory
// should contain config.yaml; a missing file yields defaults. Client secrets
// may be supplied through the environment instead of the file.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig() // Start with default config

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			return config, nil
		}
		logging.Info("Config", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyEnvOverrides(&config)
	logging.Info("Config", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// applyEnvOverrides lets deployments keep secrets out of config.yaml.
// Recognized variables:
//
//	TOKEND_STORAGE_DSN             Postgres connection string
//	TOKEND_REDIS_PASSWORD          Redis auth password
//	TOKEND_<PROVIDER>_CLIENT_SECRET  OAuth client secret per provider
func applyEnvOverrides(config *Config) {
	if dsn := os.Getenv(envPrefix + "STORAGE_DSN"); dsn != "" {
		config.Storage.DSN = dsn
	}
	if pw := os.Getenv(envPrefix + "REDIS_PASSWORD"); pw != "" {
		config.Redis.Password = pw
	}
	for name, pc := range config.Providers {
		envName := envPrefix + toEnvName(name) + "_CLIENT_SECRET"
		if secret := os.Getenv(envName); secret != "" {
			pc.ClientSecret = secret
			config.Providers[name] = pc
		}
	}
}

func toEnvName(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
}
