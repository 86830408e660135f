package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/app"
	"github.com/HorseSword/local-mcp-manager/internal/proxy"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

var (
	wrapName      string
	wrapHost      string
	wrapPort      int
	wrapDebug     bool
	wrapLogFormat string
)

// wrapCmd is what the supervisor runs for every service. It is not meant to be
// called by hand.
var wrapCmd = &cobra.Command{
	Use:    "wrap",
	Short:  "Re-expose one MCP server on a streamable HTTP endpoint",
	Hidden: true,
	Long: `Connects to one MCP server and serves its tools, prompts and resources on
http://<host>:<port>/mcp until it receives SIGINT or SIGTERM.

The transport is read as JSON from the ` + supervisor.TransportEnv + ` environment variable.`,
	Args: cobra.NoArgs,
	RunE: runWrap,
}

func runWrap(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if wrapDebug {
		level = logging.LevelDebug
	}
	if wrapLogFormat == app.LogFormatJSON {
		logging.InitForJSON(level, os.Stderr)
	} else {
		logging.InitForCLI(level, os.Stderr)
	}

	transport, err := transportFromEnv()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return proxy.Run(ctx, proxy.Config{
		Name:      wrapName,
		Version:   GetVersion(),
		Transport: transport,
		Host:      wrapHost,
		Port:      wrapPort,
	})
}

func transportFromEnv() (api.Transport, error) {
	raw := os.Getenv(supervisor.TransportEnv)
	if raw == "" {
		return api.Transport{}, fmt.Errorf("%s is not set", supervisor.TransportEnv)
	}
	var t api.Transport
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return api.Transport{}, fmt.Errorf("invalid %s: %w", supervisor.TransportEnv, err)
	}
	if err := t.Validate(); err != nil {
		return api.Transport{}, err
	}
	return t, nil
}

func init() {
	rootCmd.AddCommand(wrapCmd)

	wrapCmd.Flags().StringVar(&wrapName, "name", "", "Service name used in logs")
	wrapCmd.Flags().StringVar(&wrapHost, "host", "127.0.0.1", "Bind host")
	wrapCmd.Flags().IntVar(&wrapPort, "port", 0, "Bind port")
	wrapCmd.Flags().BoolVar(&wrapDebug, "debug", false, "Enable debug logging")
	wrapCmd.Flags().StringVar(&wrapLogFormat, "log-format", app.LogFormatText, "Log format (text, json)")
	_ = wrapCmd.MarkFlagRequired("port")
}
