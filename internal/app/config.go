package app

// Config carries the command-line level settings for an Application.
type Config struct {
	// Debug enables debug-level logging.
	Debug bool

	// Silent suppresses all log output.
	Silent bool

	// ConfigPath overrides the default configuration directory.
	ConfigPath string
}

// NewConfig creates an application config.
func NewConfig(debug, silent bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		Silent:     silent,
		ConfigPath: configPath,
	}
}
