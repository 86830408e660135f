// Package gateway discovers and invokes the capabilities of wrapped services.
//
// Each call opens a transient MCP streamable HTTP client to the service's re-exposed
// endpoint (http://host:port/mcp), performs the initialize handshake, issues its
// request and closes the connection again.
package gateway
