// Package logging provides a structured logging system for tokend with unified
// log handling and level filtering.
//
// This package implements a logging system built on Go's standard slog package,
// providing consistent logging behavior with structured output.
//
// # Log Levels
//   - **Debug**: Detailed information for debugging and development
//   - **Info**: General informational messages about application operation
//   - **Warn**: Warning messages that indicate potential issues
//   - **Error**: Error messages for failures and exceptional conditions
//
// # Structured Logging
//
// All log entries include a timestamp, the log level, a subsystem identifier
// for categorization, and the message content with optional formatting.
//
// # Usage
//
//	import "tokend/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.Init(logging.LevelInfo, os.Stdout)
//
//	// Log messages
//	logging.Info("Bootstrap", "Application starting up")
//	logging.Debug("Config", "Loaded configuration from %s", configPath)
//	logging.Warn("RateLimit", "Counter store unreachable, failing open")
//	logging.Error("Store", err, "Failed to connect to database")
//
// # Subsystem Organization
//
// Logs are organized by subsystem to enable filtering and categorization:
//
//   - **Bootstrap**: Application initialization and startup
//   - **Config**: Configuration loading and validation
//   - **Store**: Credential persistence
//   - **RateLimit**: Fixed-window rate limiting
//   - **Provider**: Outbound OAuth provider calls
//   - **TokenManager**: Token refresh orchestration
//   - **AuthFlow**: Authorization-code flow handling
//   - **HTTP**: Inbound HTTP surface
//
// # Credential Hygiene
//
// Token values must never be logged. Tenant keys are logged through
// TruncateKey so full caller-supplied identifiers do not end up in log
// aggregation systems.
//
// # Thread Safety
//
// The logging system is fully thread-safe and may be called concurrently
// from multiple goroutines.
package logging
