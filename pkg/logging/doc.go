// Package logging provides the structured logger shared by every local-mcp-manager
// subsystem.
//
// It wraps Go's log/slog with subsystem-scoped helpers so that call sites read
// the same everywhere:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Supervisor", "Started %s (pid %d)", name, pid)
//	logging.Debug("Gateway", "Listing capabilities at %s", url)
//	logging.Warn("Config", "No settings file at %s, using defaults", path)
//	logging.Error("Orchestrator", err, "Chat request failed in round %d", round)
//
// Every entry carries a "subsystem" attribute and, for Error, an "error"
// attribute. Serve mode can switch to JSON output with InitForJSON.
//
// # Subsystems
//
//   - Bootstrap: application start-up and shutdown
//   - Config: service file and settings loading, saving, watching
//   - Supervisor: child process lifecycle
//   - Service:<name>: stderr of a wrapped child, re-logged line by line
//   - Proxy: the wrapper that re-exposes one MCP server over HTTP
//   - Gateway: transient MCP client calls
//   - Capability: discovery cache and status reconciliation
//   - Orchestrator: the tool-calling chat loop
//   - Server: HTTP API
//
// The package-level logger is guarded by a mutex; concurrent logging is safe.
package logging
