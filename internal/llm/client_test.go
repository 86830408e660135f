package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

type roundTripFunc func(*http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestClientChatSendsToolsAndMessages(t *testing.T) {
	client := NewClient("http://fake/v1/", "qwen3", "secret", 0)
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			assert.Equal(t, "/v1/chat/completions", req.URL.Path)
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))

			var payload map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			assert.Equal(t, "qwen3", payload["model"])
			assert.Equal(t, false, payload["stream"])

			tools := payload["tools"].([]any)
			require.Len(t, tools, 1)
			fn := tools[0].(map[string]any)["function"].(map[string]any)
			assert.Equal(t, "add", fn["name"])
			assert.Equal(t, map[string]any{"type": "object", "x-keep": true}, fn["parameters"])

			messages := payload["messages"].([]any)
			require.Len(t, messages, 3)
			call := messages[1].(map[string]any)["tool_calls"].([]any)[0].(map[string]any)
			assert.Equal(t, "call-1", call["id"])
			assert.Equal(t, "function", call["type"])
			assert.Equal(t, `{"a":1}`, call["function"].(map[string]any)["arguments"])
			assert.Equal(t, "call-1", messages[2].(map[string]any)["tool_call_id"])

			return jsonResponse(200, `{"choices":[{"message":{"role":"assistant","content":"3"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`)
		}),
	}

	resp, err := client.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "1+2?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call-1", Name: "add", Arguments: json.RawMessage(`{"a":1}`)}}},
		{Role: RoleTool, ToolCallID: "call-1", Name: "add", Content: "3"},
	}, []ToolDefinition{{Name: "add", Parameters: json.RawMessage(`{"type":"object","x-keep":true}`)}})
	require.NoError(t, err)
	assert.Equal(t, "3", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, 12, resp.Usage["total_tokens"])
}

func TestClientDebugLogsPayloads(t *testing.T) {
	var buf bytes.Buffer
	logging.InitForCLI(logging.LevelDebug, &buf)
	t.Cleanup(func() { logging.InitForCLI(logging.LevelError, io.Discard) })

	client := NewClient("http://fake", "m", "", 0)
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			return jsonResponse(200, `{"choices":[{"message":{"content":"pong"},"finish_reason":"stop"}]}`)
		}),
	}

	_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}}, nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "request payload")

	client.Debug = true
	_, err = client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "ping"}}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "request payload")
	assert.Contains(t, buf.String(), "response payload")
	assert.Contains(t, buf.String(), "pong")
}

func TestClientChatOmitsToolsWhenNone(t *testing.T) {
	client := NewClient("http://fake", "m", "", 0)
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			assert.Empty(t, req.Header.Get("Authorization"))
			var payload map[string]any
			require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
			assert.NotContains(t, payload, "tools")
			return jsonResponse(200, `{"choices":[{"message":{"content":"hi"}}]}`)
		}),
	}

	resp, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
}

func TestClientChatParsesToolCalls(t *testing.T) {
	client := NewClient("http://fake", "m", "", 0)
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			return jsonResponse(200, `{"choices":[{"message":{"content":"","tool_calls":[
				{"id":"a","type":"function","function":{"name":"add","arguments":"{\"a\":1,\"b\":2}"}},
				{"type":"function","function":{"name":"now","arguments":{}}},
				{"type":"function","function":{"name":"say","arguments":"hello"}}
			]}}]}`)
		}),
	}

	resp, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 3)

	assert.Equal(t, "a", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(resp.ToolCalls[0].Arguments))
	assert.Empty(t, resp.ToolCalls[1].ID)
	assert.JSONEq(t, `{}`, string(resp.ToolCalls[1].Arguments))
	assert.JSONEq(t, `{"value":"hello"}`, string(resp.ToolCalls[2].Arguments))
}

func TestClientChatNativeOllamaShape(t *testing.T) {
	client := NewClient("http://fake", "m", "", 0)
	client.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) *http.Response {
			return jsonResponse(200, `{"message":{"role":"assistant","content":"ok"},"done_reason":"stop"}`)
		}),
	}

	resp, err := client.Chat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestClientChatErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "http status", status: 500, body: "overloaded", want: "overloaded"},
		{name: "error body", status: 200, body: `{"error":{"message":"model not found"}}`, want: "model not found"},
		{name: "no message", status: 200, body: `{"choices":[]}`, want: "no message"},
		{name: "not json", status: 200, body: `<html>`, want: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient("http://fake", "m", "", 0)
			client.client = &http.Client{
				Transport: roundTripFunc(func(req *http.Request) *http.Response {
					return jsonResponse(tt.status, tt.body)
				}),
			}
			_, err := client.Chat(context.Background(), nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseArguments(t *testing.T) {
	assert.JSONEq(t, `{}`, string(parseArguments(nil)))
	assert.JSONEq(t, `{}`, string(parseArguments(json.RawMessage(`null`))))
	assert.JSONEq(t, `{}`, string(parseArguments(json.RawMessage(`""`))))
	assert.JSONEq(t, `{"_raw":"[1,2]"}`, string(parseArguments(json.RawMessage(`[1,2]`))))
}
