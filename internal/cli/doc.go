// Package cli holds the client side of the local-mcp-manager command line.
//
// Every command except serve talks to a running manager through its management HTTP
// API. Client wraps that API: it unwraps the api.Result envelope, maps failed
// envelopes to APIError and transport failures to ConnectionError, and reads the
// NDJSON chat stream event by event.
//
// Printer renders what the client returns in one of four formats:
//   - table: rounded go-pretty tables with colored statuses (default)
//   - plain: borderless, uncolored columns for scripts and grep
//   - json: indented JSON of the API data
//   - yaml: the same data as YAML
//
// Long-running requests such as start-all and stop-all show a spinner on stderr
// through WithSpinner unless --quiet is set.
//
// # Usage
//
//	flags := &cli.CommandFlags{}
//	cli.RegisterCommonFlags(rootCmd, flags)
//
//	services, err := flags.Client().Services(ctx)
//	if err != nil {
//		return err
//	}
//	printer, err := flags.Printer(cmd)
//	if err != nil {
//		return err
//	}
//	return printer.Services(services)
//
// The endpoint defaults to the web bind of the default settings and can be set with
// --endpoint or the LOCAL_MCP_MANAGER_ENDPOINT environment variable.
package cli
