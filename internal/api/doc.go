// Package api holds the types shared by every layer of the manager: transport
// descriptions, service status, capability bundles, the two-path Payload,
// chat events and the typed errors that controllers map to HTTP answers.
//
// The package has no dependencies on other internal packages so that supervisor,
// gateway, capability cache, orchestrator and server can all import it.
package api
