package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/gateway"
	"github.com/HorseSword/local-mcp-manager/internal/llm"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

func TestMain(m *testing.M) {
	logging.InitForCLI(logging.LevelError, io.Discard)
	os.Exit(m.Run())
}

type fakeServices map[string]supervisor.DescriptorView

func (f fakeServices) Get(name string) (supervisor.DescriptorView, error) {
	v, ok := f[name]
	if !ok {
		return supervisor.DescriptorView{}, api.NewServiceNotFoundError(name)
	}
	return v, nil
}

type invocation struct {
	target gateway.Target
	tool   string
	params string
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []invocation
	fn    func(tool string, params json.RawMessage) (api.Payload, error)
}

func (f *fakeInvoker) InvokeTool(_ context.Context, target gateway.Target, tool string, params json.RawMessage) (api.Payload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{target: target, tool: tool, params: string(params)})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(tool, params)
	}
	return api.DecodePayload(map[string]any{"ok": true}), nil
}

type request struct {
	messages []llm.Message
	tools    []llm.ToolDefinition
}

// scriptedModel answers round n with responses[n-1].
type scriptedModel struct {
	responses []func() (*llm.Response, error)
	requests  []request
}

func (m *scriptedModel) Chat(_ context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	m.requests = append(m.requests, request{
		messages: append([]llm.Message(nil), messages...),
		tools:    tools,
	})
	i := len(m.requests) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i]()
}

func reply(content string, calls ...llm.ToolCall) func() (*llm.Response, error) {
	return func() (*llm.Response, error) {
		return &llm.Response{Content: content, ToolCalls: calls}, nil
	}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func services() fakeServices {
	return fakeServices{
		"calc": {
			Descriptor: supervisor.Descriptor{Name: "calc", BindHost: "127.0.0.1", BindPort: 18001},
			Alive:      true,
			Status:     api.StatusOn,
			Capabilities: &api.CapabilityBundle{Tools: []api.Capability{
				{Name: "add", Description: "Add numbers", Schema: json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"}}}`)},
				{Name: "now"},
			}},
		},
		"cold": {
			Descriptor: supervisor.Descriptor{Name: "cold", BindHost: "127.0.0.1", BindPort: 18002},
			Alive:      true,
			Status:     api.StatusOff,
		},
	}
}

func history() []api.ChatMessage {
	return []api.ChatMessage{{Role: "user", Content: "what is 1+2?"}}
}

func eventTypes(events []api.ChatEvent) []api.ChatEventType {
	out := make([]api.ChatEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestRunToolCallThenAnswer(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		reply("", call("c1", "add", `{"a":1,"b":2}`)),
		reply("The answer is 3."),
	}}
	invoker := &fakeInvoker{fn: func(string, json.RawMessage) (api.Payload, error) {
		return api.DecodePayload(json.RawMessage(`{"sum":3}`)), nil
	}}
	o := New(services(), invoker, model, Config{})

	trace, err := o.Run(context.Background(), "calc", history())
	require.NoError(t, err)

	assert.Empty(t, trace.Error)
	assert.Equal(t, "The answer is 3.", trace.Answer)
	assert.Equal(t, 2, trace.Rounds)
	assert.Equal(t, []api.ChatEventType{api.ChatEventToolCall, api.ChatEventResponse}, eventTypes(trace.Events))

	tc := trace.ToolCalls()[0]
	assert.Equal(t, "add", tc.Tool)
	assert.Equal(t, "c1", tc.CallID)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(tc.Arguments))
	assert.JSONEq(t, `{"sum":3}`, string(tc.Result.JSON()))

	require.Len(t, invoker.calls, 1)
	assert.Equal(t, gateway.Target{Name: "calc", Host: "127.0.0.1", Port: 18001}, invoker.calls[0].target)

	// Round 2 sees the assistant tool call and the keyed tool result.
	second := model.requests[1].messages
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleSystem, second[0].Role)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, "c1", second[2].ToolCalls[0].ID)
	assert.Equal(t, llm.RoleTool, second[3].Role)
	assert.Equal(t, "c1", second[3].ToolCallID)
	assert.JSONEq(t, `{"sum":3}`, second[3].Content)
}

func TestRunIsBoundedAndLastRoundHasNoTools(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		reply("thinking", call("c", "now", `{}`)),
	}}
	o := New(services(), &fakeInvoker{}, model, Config{})

	trace, err := o.Run(context.Background(), "calc", history())
	require.NoError(t, err)

	require.Len(t, model.requests, DefaultMaxRounds)
	assert.Equal(t, DefaultMaxRounds, trace.Rounds)
	for i, req := range model.requests[:DefaultMaxRounds-1] {
		assert.Len(t, req.tools, 2, "round %d offers tools", i+1)
		assert.Equal(t, DefaultSystemPrompt, req.messages[0].Content)
	}
	last := model.requests[DefaultMaxRounds-1]
	assert.Empty(t, last.tools)
	assert.NotEqual(t, llm.RoleSystem, last.messages[0].Role)

	assert.Len(t, trace.ToolCalls(), DefaultMaxRounds-1)
	assert.Equal(t, "thinking", trace.Answer)
	assert.Equal(t, api.ChatEventResponse, trace.Events[len(trace.Events)-1].Type)
}

func TestStreamEmitsEventsAndDone(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		reply("", call("c1", "add", `{"a":1}`)),
		reply("3"),
	}}
	o := New(services(), &fakeInvoker{}, model, Config{})

	var events []api.ChatEvent
	o.Stream(context.Background(), "calc", history(), func(ev api.ChatEvent) {
		events = append(events, ev)
	})

	assert.Equal(t, []api.ChatEventType{api.ChatEventToolCall, api.ChatEventResponse, api.ChatEventDone}, eventTypes(events))
	assert.Equal(t, 2, events[2].Round)
}

func TestStreamIsBoundedWhenEveryRoundCallsTools(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		reply("still going", call("", "now", `{}`)),
	}}
	o := New(services(), &fakeInvoker{}, model, Config{MaxRounds: 3})

	var events []api.ChatEvent
	o.Stream(context.Background(), "calc", history(), func(ev api.ChatEvent) {
		events = append(events, ev)
	})

	require.Len(t, model.requests, 3)
	assert.Empty(t, model.requests[2].tools)
	assert.Equal(t, []api.ChatEventType{
		api.ChatEventToolCall, api.ChatEventToolCall, api.ChatEventResponse, api.ChatEventDone,
	}, eventTypes(events))
	assert.Equal(t, "still going", events[2].Content)
	assert.Equal(t, 3, events[3].Round)
}

func TestResponseEventCarriesFinishReasonAndUsage(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		func() (*llm.Response, error) {
			return &llm.Response{Content: "3", FinishReason: "stop", Usage: map[string]int{"total_tokens": 42}}, nil
		},
	}}
	o := New(services(), &fakeInvoker{}, model, Config{})

	trace, err := o.Run(context.Background(), "calc", history())
	require.NoError(t, err)
	resp := trace.Events[len(trace.Events)-1]
	assert.Equal(t, api.ChatEventResponse, resp.Type)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 42, resp.Usage["total_tokens"])
}

func TestUnknownServiceIsStructuredError(t *testing.T) {
	o := New(services(), &fakeInvoker{}, &scriptedModel{}, Config{})

	trace, err := o.Run(context.Background(), "missing", history())
	require.NoError(t, err)
	assert.Contains(t, trace.Error, "missing")
	assert.Equal(t, []api.ChatEventType{api.ChatEventError}, eventTypes(trace.Events))

	var events []api.ChatEvent
	o.Stream(context.Background(), "missing", history(), func(ev api.ChatEvent) { events = append(events, ev) })
	assert.Equal(t, []api.ChatEventType{api.ChatEventError, api.ChatEventDone}, eventTypes(events))
}

func TestNoCachedCapabilities(t *testing.T) {
	model := &scriptedModel{}
	o := New(services(), &fakeInvoker{}, model, Config{})

	trace, err := o.Run(context.Background(), "cold", history())
	require.NoError(t, err)
	assert.Contains(t, trace.Error, api.ErrNoCapabilities.Error())
	assert.Empty(t, model.requests)
}

func TestEmptyHistoryIsRejected(t *testing.T) {
	o := New(services(), &fakeInvoker{}, &scriptedModel{}, Config{})

	trace, err := o.Run(context.Background(), "calc", []api.ChatMessage{{Role: "tool", Content: "x"}, {Role: "user"}})
	require.NoError(t, err)
	assert.NotEmpty(t, trace.Error)
}

func TestChatEndpointFailureAbortsLoop(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		reply("", call("c1", "add", `{}`)),
		func() (*llm.Response, error) { return nil, errors.New("503 overloaded") },
		reply("never"),
	}}
	o := New(services(), &fakeInvoker{}, model, Config{})

	var events []api.ChatEvent
	o.Stream(context.Background(), "calc", history(), func(ev api.ChatEvent) { events = append(events, ev) })

	assert.Equal(t, []api.ChatEventType{api.ChatEventToolCall, api.ChatEventError, api.ChatEventDone}, eventTypes(events))
	assert.Contains(t, events[1].Error, "overloaded")
	assert.Len(t, model.requests, 2)
}

func TestInvocationFailureIsFedBackAsData(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		reply("", call("c1", "add", `{}`), call("c2", "ghost", `{}`)),
		reply("sorry"),
	}}
	invoker := &fakeInvoker{fn: func(string, json.RawMessage) (api.Payload, error) {
		return api.Payload{}, errors.New("connection refused")
	}}
	o := New(services(), invoker, model, Config{})

	trace, err := o.Run(context.Background(), "calc", history())
	require.NoError(t, err)
	assert.Empty(t, trace.Error)
	assert.Equal(t, "sorry", trace.Answer)

	calls := trace.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "connection refused", calls[0].Error)
	assert.JSONEq(t, `{"error":"connection refused"}`, string(calls[0].Result.JSON()))
	assert.Contains(t, calls[1].Error, "ghost")
	assert.Len(t, invoker.calls, 1, "unknown tools are not sent to the service")

	toolMsg := model.requests[1].messages[3]
	assert.Equal(t, "c1", toolMsg.ToolCallID)
	assert.JSONEq(t, `{"error":"connection refused"}`, toolMsg.Content)
}

func TestMissingCallIDIsGenerated(t *testing.T) {
	model := &scriptedModel{responses: []func() (*llm.Response, error){
		reply("", llm.ToolCall{Name: "now"}),
		reply("done"),
	}}
	o := New(services(), &fakeInvoker{}, model, Config{NewID: func() string { return "generated" }})

	trace, err := o.Run(context.Background(), "calc", history())
	require.NoError(t, err)

	tc := trace.ToolCalls()[0]
	assert.Equal(t, "generated", tc.CallID)
	assert.JSONEq(t, `{}`, string(tc.Arguments))
	assert.Equal(t, "generated", model.requests[1].messages[3].ToolCallID)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	model := &scriptedModel{}
	o := New(services(), &fakeInvoker{}, model, Config{})

	trace, err := o.Run(ctx, "calc", history())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEmpty(t, trace.Error)
	assert.Empty(t, model.requests)
}

func TestToolDefinitions(t *testing.T) {
	schema := json.RawMessage(`{"type":"object",  "properties":{"path":{"type":"string"}},"x-order":[1]}`)
	defs := ToolDefinitions(&api.CapabilityBundle{Tools: []api.Capability{
		{Name: "read", Description: "Read a file", Schema: schema},
		{Name: "now"},
		{Raw: "garbage"},
	}})

	require.Len(t, defs, 2)
	assert.Equal(t, "read", defs[0].Name)
	assert.Equal(t, "Read a file", defs[0].Description)
	assert.Equal(t, string(schema), string(defs[0].Parameters), "schema bytes are kept")
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(defs[1].Parameters))

	assert.Nil(t, ToolDefinitions(nil))
}

func TestFilterHistory(t *testing.T) {
	msgs := FilterHistory([]api.ChatMessage{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: ""},
		{Role: "tool", Content: "{}"},
		{Role: "assistant", Content: "hello"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"system", "user", "assistant"}, []string{msgs[0].Role, msgs[1].Role, msgs[2].Role})
}
