// Package manager is the facade over the supervisor, the capability cache, the gateway
// and the chat orchestrator. The HTTP server and the serve command only talk to it.
package manager
