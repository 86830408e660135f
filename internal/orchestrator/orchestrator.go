package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/capability"
	"github.com/HorseSword/local-mcp-manager/internal/gateway"
	"github.com/HorseSword/local-mcp-manager/internal/llm"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const subsystem = "Orchestrator"

// DefaultMaxRounds bounds the number of chat completions of one chat.
const DefaultMaxRounds = 3

// DefaultSystemPrompt is sent on every round that offers tools.
const DefaultSystemPrompt = "You can call the tools of the connected service. Use tools only when necessary."

// emptySchema replaces a missing tool schema.
var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// ServiceSource resolves a service to its endpoint and cached capabilities.
// *supervisor.Supervisor implements it.
type ServiceSource interface {
	Get(name string) (supervisor.DescriptorView, error)
}

// ToolInvoker executes one tool call. *gateway.Gateway implements it.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, target gateway.Target, tool string, params json.RawMessage) (api.Payload, error)
}

// Config tunes an Orchestrator.
type Config struct {
	MaxRounds    int
	SystemPrompt string
	// NewID generates tool call IDs the model left out. Defaults to uuid.NewString.
	NewID func() string
}

// Orchestrator runs chats against one service at a time.
type Orchestrator struct {
	services ServiceSource
	tools    ToolInvoker
	model    llm.ChatModel

	maxRounds    int
	systemPrompt string
	newID        func() string
}

// New creates an Orchestrator.
func New(services ServiceSource, tools ToolInvoker, model llm.ChatModel, cfg Config) *Orchestrator {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	return &Orchestrator{
		services:     services,
		tools:        tools,
		model:        model,
		maxRounds:    cfg.MaxRounds,
		systemPrompt: cfg.SystemPrompt,
		newID:        cfg.NewID,
	}
}

// session is the state of one chat.
type session struct {
	target   gateway.Target
	bundle   *api.CapabilityBundle
	messages []llm.Message
	trace    api.ChatTrace
	emit     func(api.ChatEvent)
}

func (s *session) record(ev api.ChatEvent) {
	if ev.Type != api.ChatEventDone {
		s.trace.Events = append(s.trace.Events, ev)
	}
	if s.emit != nil {
		s.emit(ev)
	}
}

func (s *session) fail(round int, err error) {
	s.trace.Error = err.Error()
	s.record(api.ChatEvent{Type: api.ChatEventError, Round: round, Error: err.Error()})
}

// Run executes a chat and returns its trace. Failures of the chat itself are reported in
// the trace; the error is only set when ctx ended the chat.
func (o *Orchestrator) Run(ctx context.Context, service string, history []api.ChatMessage) (api.ChatTrace, error) {
	s := o.run(ctx, service, history, nil)
	return s.trace, ctx.Err()
}

// Stream executes a chat and hands every event to emit. The last event is always done.
func (o *Orchestrator) Stream(ctx context.Context, service string, history []api.ChatMessage, emit func(api.ChatEvent)) {
	o.run(ctx, service, history, emit)
}

func (o *Orchestrator) run(ctx context.Context, service string, history []api.ChatMessage, emit func(api.ChatEvent)) *session {
	s := &session{
		trace:    api.ChatTrace{Service: service, Events: []api.ChatEvent{}},
		messages: FilterHistory(history),
		emit:     emit,
	}
	defer func() {
		s.record(api.ChatEvent{Type: api.ChatEventDone, Round: s.trace.Rounds})
	}()

	v, err := o.services.Get(service)
	if err != nil {
		s.fail(0, err)
		return s
	}
	if v.Capabilities == nil {
		s.fail(0, fmt.Errorf("%s: %w", service, api.ErrNoCapabilities))
		return s
	}
	s.target = capability.TargetOf(v)
	s.bundle = v.Capabilities
	if len(s.messages) == 0 {
		s.fail(0, api.NewValidationError("messages", "no user, assistant or system message with content"))
		return s
	}

	defs := ToolDefinitions(s.bundle)
	for round := 1; round <= o.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			s.fail(round, fmt.Errorf("chat cancelled: %w", err))
			return s
		}
		s.trace.Rounds = round
		last := round == o.maxRounds

		messages := s.messages
		var tools []llm.ToolDefinition
		if !last {
			messages = append([]llm.Message{{Role: llm.RoleSystem, Content: o.systemPrompt}}, s.messages...)
			tools = defs
		}

		resp, err := o.model.Chat(ctx, messages, tools)
		if err != nil {
			logging.Warn(subsystem, "Chat with %s aborted in round %d: %v", service, round, err)
			s.fail(round, fmt.Errorf("chat endpoint failed: %w", err))
			return s
		}
		logging.Debug(subsystem, "Round %d of %s: %d tool calls, finish reason %q, usage %v",
			round, service, len(resp.ToolCalls), resp.FinishReason, resp.Usage)

		if len(resp.ToolCalls) == 0 || last {
			s.trace.Answer = resp.Content
			s.record(api.ChatEvent{
				Type:         api.ChatEventResponse,
				Round:        round,
				Content:      resp.Content,
				FinishReason: resp.FinishReason,
				Usage:        resp.Usage,
			})
			return s
		}

		o.runTools(ctx, s, round, resp)
	}
	return s
}

// runTools executes the tool calls of one response and appends the assistant turn and
// one tool message per call to the conversation.
func (o *Orchestrator) runTools(ctx context.Context, s *session, round int, resp *llm.Response) {
	calls := make([]llm.ToolCall, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		if call.ID == "" {
			call.ID = o.newID()
		}
		if len(bytes.TrimSpace(call.Arguments)) == 0 {
			call.Arguments = json.RawMessage(`{}`)
		}
		calls = append(calls, call)
	}
	s.messages = append(s.messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: calls})

	for _, call := range calls {
		ev := api.ChatEvent{
			Type:      api.ChatEventToolCall,
			Round:     round,
			Tool:      call.Name,
			CallID:    call.ID,
			Arguments: call.Arguments,
		}

		result, err := o.invoke(ctx, s, call)
		if err != nil {
			logging.Debug(subsystem, "Tool %s on %s failed: %v", call.Name, s.target.Name, err)
			ev.Error = err.Error()
			result = api.DecodePayload(map[string]string{"error": err.Error()})
		}
		ev.Result = &result
		s.record(ev)

		s.messages = append(s.messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    result.String(),
		})
	}
}

func (o *Orchestrator) invoke(ctx context.Context, s *session, call llm.ToolCall) (api.Payload, error) {
	if _, ok := s.bundle.Tool(call.Name); !ok {
		return api.Payload{}, api.NewToolNotFoundError(call.Name)
	}
	return o.tools.InvokeTool(ctx, s.target, call.Name, call.Arguments)
}

// FilterHistory keeps system, user and assistant messages that have content.
func FilterHistory(history []api.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			continue
		}
		if m.Content == "" {
			continue
		}
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// ToolDefinitions converts the tools of a bundle into function declarations. Schemas are
// passed through byte for byte. Raw items have no usable name and are skipped.
func ToolDefinitions(bundle *api.CapabilityBundle) []llm.ToolDefinition {
	if bundle == nil {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(bundle.Tools))
	for _, t := range bundle.Tools {
		if t.IsRaw() || t.Name == "" {
			continue
		}
		schema := t.Schema
		if len(bytes.TrimSpace(schema)) == 0 || bytes.Equal(bytes.TrimSpace(schema), []byte("null")) {
			schema = emptySchema
		}
		defs = append(defs, llm.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: schema})
	}
	return defs
}
