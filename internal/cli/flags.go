package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/HorseSword/local-mcp-manager/internal/config"
)

// EndpointEnvVar is the environment variable name for setting the default endpoint.
const EndpointEnvVar = "LOCAL_MCP_MANAGER_ENDPOINT"

// GetDefaultEndpoint returns the endpoint from the environment, or the default web bind.
func GetDefaultEndpoint() string {
	if env := os.Getenv(EndpointEnvVar); env != "" {
		return env
	}
	web := config.DefaultSettings().Web
	return fmt.Sprintf("http://%s:%d", web.Host, web.Port)
}

// CommandFlags holds the flag values shared by commands that talk to a running manager.
type CommandFlags struct {
	// OutputFormat specifies the desired output format (table, plain, json, yaml)
	OutputFormat string
	// NoHeaders suppresses the header row in table output
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output
	Quiet bool
	// Endpoint is the base URL of the management API
	Endpoint string
	// Timeout bounds each request
	Timeout time.Duration
}

// RegisterCommonFlags registers the output and connection flags as persistent flags.
//
// The registered flags are:
//   - --output/-o: Output format (table, plain, json, yaml), default: "table"
//   - --no-headers: Suppress header row in table output
//   - --quiet/-q: Suppress non-essential output
//   - --endpoint: Management API URL (env: LOCAL_MCP_MANAGER_ENDPOINT)
//   - --timeout: Request timeout
func RegisterCommonFlags(cmd *cobra.Command, flags *CommandFlags) {
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "output", "o", string(OutputFormatTable), "Output format (table, plain, json, yaml)")
	cmd.PersistentFlags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in table output")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().StringVar(&flags.Endpoint, "endpoint", GetDefaultEndpoint(), "Management API URL (env: "+EndpointEnvVar+")")
	cmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout", DefaultTimeout, "Request timeout")
}

// Client builds an API client from the flags.
func (f *CommandFlags) Client() *Client {
	return NewClient(f.Endpoint, f.Timeout)
}

// Printer builds a printer from the flags after validating the output format.
func (f *CommandFlags) Printer(cmd *cobra.Command) (*Printer, error) {
	if err := ValidateOutputFormat(f.OutputFormat); err != nil {
		return nil, err
	}
	return &Printer{
		Out:       cmd.OutOrStdout(),
		Format:    OutputFormat(f.OutputFormat),
		NoHeaders: f.NoHeaders,
		Quiet:     f.Quiet,
	}, nil
}
