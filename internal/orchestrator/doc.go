// Package orchestrator drives the bounded tool-calling loop between a chat-completion
// endpoint and the cached capabilities of one managed service.
//
// # Rounds
//
// A chat runs at most MaxRounds rounds. Every round but the last offers the service's
// tools as function declarations together with the system instruction. The last round
// offers no tools, so the model has to answer with what it gathered.
//
// Tool calls of a round are executed in order through the gateway. Each call produces a
// tool_call event and its result is fed back to the model as a role=tool message keyed by
// the call ID. A failed invocation is passed to the model as {"error": "..."} and does
// not end the loop. A failing chat endpoint does: an error event is recorded and the
// loop stops.
//
// # Run and Stream
//
// Run collects the events into an api.ChatTrace. Stream hands every event to a callback
// as it happens and always finishes with a done event. Both share one engine.
package orchestrator
