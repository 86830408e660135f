// Package proxy re-exposes a single MCP service over streamable HTTP.
//
// It is the body of the hidden `wrap` subcommand that the supervisor spawns once
// per managed service. The proxy connects to the real service (a stdio child or a
// remote endpoint) through internal/mcpclient, mirrors its tools, prompts and
// resources onto an mcp-go server, and serves that server at http://host:port/mcp.
//
// Every mirrored item is registered with a forwarding handler that calls through
// to the backend with the original name. The backend is pinged periodically; a
// local backend that stops answering ends Run, so the wrapper process exits and
// the supervisor observes the service as dead.
package proxy
