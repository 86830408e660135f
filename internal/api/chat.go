package api

import "encoding/json"

// ChatMessage is one entry of the conversation history supplied by a client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatEventType names the kinds of events a chat round trip produces.
type ChatEventType string

const (
	ChatEventToolCall ChatEventType = "tool_call"
	ChatEventResponse ChatEventType = "response"
	ChatEventError    ChatEventType = "error"
	ChatEventDone     ChatEventType = "done"
)

// ChatEvent is one entry of a chat trace. Streaming emits them one by one.
type ChatEvent struct {
	Type      ChatEventType   `json:"type"`
	Round     int             `json:"round,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    *Payload        `json:"result,omitempty"`
	Content   string          `json:"content,omitempty"`
	Error     string          `json:"error,omitempty"`

	// FinishReason and Usage are copied from the completion that produced a response event.
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        map[string]int `json:"usage,omitempty"`
}

// ChatTrace is the non-streaming answer of a chat round trip.
type ChatTrace struct {
	Service string      `json:"service"`
	Events  []ChatEvent `json:"events"`
	Answer  string      `json:"answer"`
	Rounds  int         `json:"rounds"`
	Error   string      `json:"error,omitempty"`
}

// ToolCalls returns the tool_call events of the trace in order.
func (t ChatTrace) ToolCalls() []ChatEvent {
	var out []ChatEvent
	for _, e := range t.Events {
		if e.Type == ChatEventToolCall {
			out = append(out, e)
		}
	}
	return out
}
