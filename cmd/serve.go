package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tokend/internal/app"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveSilent suppresses all log output, for use in tests and scripts.
var serveSilent bool

// serveConfigPath specifies a custom configuration directory path.
var serveConfigPath string

// serveCmd starts the tokend HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tokend HTTP server",
	Long: `Starts the tokend HTTP server, exposing the authorization flow,
token status, and refresh endpoints for every configured provider.

Configuration:
  tokend loads config.yaml from ~/.config/tokend by default.
  Use --config-path to load from a different directory. Secrets can be
  supplied via TOKEND_* environment variables instead of the file.

The server runs until interrupted (SIGINT/SIGTERM) and shuts down
gracefully, finishing in-flight requests.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveSilent, serveConfigPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Suppress all log output")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
}
