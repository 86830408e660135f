// Package mcpclient wraps the mcp-go clients behind one MCPClient interface.
//
// Three transports are supported:
//   - stdio: a local command spawned as a child, JSON-RPC over its stdin/stdout
//   - streamable-http: a remote endpoint speaking MCP streamable HTTP
//   - sse: a remote endpoint speaking the older HTTP+SSE transport
//
// New picks the implementation from an api.Transport. The wrapper process uses
// it to reach the service it re-exposes; the gateway uses NewStreamableHTTPClient
// for its one-call connections to wrapper endpoints.
//
// All clients are safe for concurrent use once initialized. Initialize applies a
// 10 second timeout when the context carries no deadline.
package mcpclient
