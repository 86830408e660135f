package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const subsystem = "LLM"

// DefaultEndpoint is the OpenAI compatible API of a local Ollama.
const DefaultEndpoint = "http://localhost:11434/v1"

// DefaultTimeout bounds one completion request.
const DefaultTimeout = 3 * time.Minute

// Client talks to an OpenAI compatible /chat/completions endpoint.
type Client struct {
	Endpoint    string
	Model       string
	APIKey      string
	Temperature *float64
	Debug       bool

	client *http.Client
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	// Native Ollama responses carry the message at the top level.
	Message    *wireMessage   `json:"message"`
	DoneReason string         `json:"done_reason"`
	Usage      map[string]any `json:"usage"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient builds a client. An empty endpoint selects DefaultEndpoint.
func NewClient(endpoint, model, apiKey string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Model:    model,
		APIKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Chat implements ChatModel.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	payload := chatRequest{
		Model:       c.Model,
		Messages:    convertMessages(messages),
		Tools:       convertTools(tools),
		Temperature: c.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	c.logPayload(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(msg))
		if detail != "" {
			return nil, fmt.Errorf("chat endpoint error: %s: %s", resp.Status, detail)
		}
		return nil, fmt.Errorf("chat endpoint error: %s", resp.Status)
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logResponse(responseBody)
	return decodeResponse(responseBody)
}

func (c *Client) getHTTPClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	c.client = &http.Client{Timeout: DefaultTimeout}
	return c.client
}

func convertMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		m := wireMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, call := range msg.ToolCalls {
			args := call.Arguments
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			// OpenAI encodes arguments as a JSON string.
			encoded, _ := json.Marshal(string(args))
			m.ToolCalls = append(m.ToolCalls, wireToolCall{
				ID:       call.ID,
				Type:     "function",
				Function: wireFunction{Name: call.Name, Arguments: encoded},
			})
		}
		out = append(out, m)
	}
	return out
}

func convertTools(tools []ToolDefinition) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	res := make([]wireTool, 0, len(tools))
	for _, tool := range tools {
		res = append(res, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return res
}

func decodeResponse(body []byte) (*Response, error) {
	var raw chatResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if raw.Error != nil && raw.Error.Message != "" {
		return nil, fmt.Errorf("chat endpoint error: %s", raw.Error.Message)
	}

	var (
		msg    *wireMessage
		reason string
	)
	switch {
	case len(raw.Choices) > 0:
		msg, reason = &raw.Choices[0].Message, raw.Choices[0].FinishReason
	case raw.Message != nil:
		msg, reason = raw.Message, raw.DoneReason
	default:
		return nil, fmt.Errorf("chat response has no message")
	}

	return &Response{
		Content:      msg.Content,
		ToolCalls:    parseToolCalls(msg.ToolCalls),
		FinishReason: reason,
		Usage:        normalizeUsage(raw.Usage),
	}, nil
}

func parseToolCalls(calls []wireToolCall) []ToolCall {
	results := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		results = append(results, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: parseArguments(call.Function.Arguments),
		})
	}
	return results
}

// parseArguments normalizes arguments to a JSON object. Endpoints send either an object
// or a string holding one.
func parseArguments(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj == nil {
			return json.RawMessage(`{}`)
		}
		return raw
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if strings.TrimSpace(str) == "" {
			return json.RawMessage(`{}`)
		}
		var nested map[string]any
		if err := json.Unmarshal([]byte(str), &nested); err == nil && nested != nil {
			return json.RawMessage(str)
		}
		b, _ := json.Marshal(map[string]string{"value": str})
		return b
	}
	b, _ := json.Marshal(map[string]string{"_raw": string(raw)})
	return b
}

func normalizeUsage(raw map[string]any) map[string]int {
	if len(raw) == 0 {
		return nil
	}
	usage := make(map[string]int, len(raw))
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			usage[k] = int(n)
		}
	}
	return usage
}

func (c *Client) logPayload(payload []byte) {
	if !c.Debug {
		return
	}
	logging.Debug(subsystem, "request payload: %s", truncate(string(payload), 2048))
}

func (c *Client) logResponse(resp []byte) {
	if !c.Debug {
		return
	}
	logging.Debug(subsystem, "response payload: %s", truncate(string(resp), 2048))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
