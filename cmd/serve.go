package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HorseSword/local-mcp-manager/internal/app"
	"github.com/HorseSword/local-mcp-manager/internal/config"
)

var (
	serveConfigPath   string
	serveSettingsPath string
	serveHost         string
	servePort         int
	serveDebug        bool
	serveLogFormat    string
	serveNoAutostart  bool
)

// serveCmd starts the manager and its management API in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the manager and its management API",
	Long: `Starts the manager in the foreground.

The manager reads the service file (mcp_conf.json by default, falling back to
mcp_conf.example.json next to it), starts every enabled service and serves the
management API until it receives SIGINT or SIGTERM. On shutdown every service
is stopped before the process exits.

Each service is run by a child process of this binary that re-exposes it on
http://<host>:<out_port>/mcp.

Settings such as the LLM endpoint and supervisor timings are read from
settings.yaml. A missing settings file means built-in defaults.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveLogFormat != app.LogFormatText && serveLogFormat != app.LogFormatJSON {
		return fmt.Errorf("unsupported log format %q (valid: text, json)", serveLogFormat)
	}

	cfg := app.NewConfig(serveDebug, serveConfigPath, serveSettingsPath)
	cfg.LogFormat = serveLogFormat
	cfg.Host = serveHost
	cfg.Port = servePort
	cfg.NoAutostart = serveNoAutostart
	cfg.Version = GetVersion()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", config.DefaultServiceFile, "Service file")
	serveCmd.Flags().StringVar(&serveSettingsPath, "settings", config.DefaultSettingsFile, "Settings file")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Management API bind host (overrides settings)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Management API port (overrides settings)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", app.LogFormatText, "Log format (text, json)")
	serveCmd.Flags().BoolVar(&serveNoAutostart, "no-autostart", false, "Do not start enabled services on startup")
}
