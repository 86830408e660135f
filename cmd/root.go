package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HorseSword/local-mcp-manager/internal/cli"
	"github.com/HorseSword/local-mcp-manager/internal/mcpclient"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeNotFound indicates the named service does not exist.
	ExitCodeNotFound = 2
	// ExitCodeUnavailable indicates the management API could not be reached.
	ExitCodeUnavailable = 3
)

// clientFlags are shared by every command that talks to a running manager.
var clientFlags = &cli.CommandFlags{}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "local-mcp-manager",
	Short: "Run local and remote MCP servers behind uniform HTTP endpoints",
	Long: `local-mcp-manager supervises a set of MCP servers described in mcp_conf.json.
Every server, whether it speaks stdio or is already reachable over HTTP, is
re-exposed on its own streamable HTTP endpoint. A management API lets you
start and stop services, inspect their tools, call tools directly and chat
with an OpenAI compatible model that can use them.

Start the manager with 'local-mcp-manager serve', then use the other commands
to talk to it.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command and for the MCP client handshake.
func SetVersion(v string) {
	rootCmd.Version = v
	mcpclient.ClientVersion = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code that reflects the error kind.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "local-mcp-manager version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err))
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case cli.IsNotFound(err):
		return ExitCodeNotFound
	case cli.IsUnavailable(err):
		return ExitCodeUnavailable
	default:
		return ExitCodeError
	}
}

func init() {
	// Errors are printed once by Execute.
	rootCmd.SilenceErrors = true

	cli.RegisterCommonFlags(rootCmd, clientFlags)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
