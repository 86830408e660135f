package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/capability"
	"github.com/HorseSword/local-mcp-manager/internal/config"
	"github.com/HorseSword/local-mcp-manager/internal/server"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
)

// DefaultTimeout bounds every request except the chat stream.
const DefaultTimeout = 60 * time.Second

// Client talks to the management HTTP API of a running manager.
type Client struct {
	endpoint string
	http     *http.Client
	stream   *http.Client
}

// NewClient creates a client for endpoint, e.g. http://127.0.0.1:17000.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		stream:   &http.Client{},
	}
}

// Endpoint returns the base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// do sends a request and decodes the envelope. out receives data when non-nil. The
// envelope message is returned on success.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) (string, error) {
	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", ClassifyConnectionError(err, c.endpoint)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("invalid response from %s (status %d): %w", c.endpoint, resp.StatusCode, err)
	}
	if !env.Success {
		return "", &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return env.Message, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) (string, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func servicePath(name, action string) string {
	return "/api/services/" + url.PathEscape(name) + "/" + action
}

// Health checks that the manager answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
	return err
}

// Version returns the version of the running manager.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	_, err := c.doJSON(ctx, http.MethodGet, "/api/version", nil, &out)
	return out.Version, err
}

// Services lists every service.
func (c *Client) Services(ctx context.Context) ([]api.ServiceInfo, error) {
	var out []api.ServiceInfo
	_, err := c.doJSON(ctx, http.MethodGet, "/api/services", nil, &out)
	return out, err
}

// Refresh re-derives liveness and reconciles statuses, then lists every service.
func (c *Client) Refresh(ctx context.Context) ([]api.ServiceInfo, error) {
	var out []api.ServiceInfo
	_, err := c.doJSON(ctx, http.MethodPost, "/api/services/refresh", nil, &out)
	return out, err
}

// Start starts one service.
func (c *Client) Start(ctx context.Context, name string) (string, error) {
	return c.doJSON(ctx, http.MethodPost, servicePath(name, "start"), nil, nil)
}

// Stop stops one service.
func (c *Client) Stop(ctx context.Context, name string) (supervisor.StopReport, error) {
	var out supervisor.StopReport
	_, err := c.doJSON(ctx, http.MethodPost, servicePath(name, "stop"), nil, &out)
	return out, err
}

// Toggle flips the enabled flag of one service and returns the new value.
func (c *Client) Toggle(ctx context.Context, name string) (bool, error) {
	var out server.ToggleResponse
	_, err := c.doJSON(ctx, http.MethodPost, servicePath(name, "toggle"), nil, &out)
	return out.Enabled, err
}

// StartAll starts every enabled service.
func (c *Client) StartAll(ctx context.Context) (api.BulkResult, error) {
	var out api.BulkResult
	_, err := c.doJSON(ctx, http.MethodPost, "/api/services/start-all", nil, &out)
	return out, err
}

// StopAll stops every running service and waits for them to exit.
func (c *Client) StopAll(ctx context.Context) (server.StopAllResponse, error) {
	var out server.StopAllResponse
	_, err := c.doJSON(ctx, http.MethodPost, "/api/services/stop-all", nil, &out)
	return out, err
}

// Capabilities returns the capability bundle of one service.
func (c *Client) Capabilities(ctx context.Context, name string, refresh bool) (capability.Entry, error) {
	path := servicePath(name, "info")
	if refresh {
		path += "?refresh=1"
	}
	var out capability.Entry
	_, err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CallTool invokes tool on service. params must be a JSON object or empty.
func (c *Client) CallTool(ctx context.Context, service, tool string, params json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	_, err := c.doJSON(ctx, http.MethodPost, servicePath(service, "call_tool"),
		server.CallToolRequest{ToolName: tool, Parameters: params}, &out)
	return out, err
}

// ChatStream runs a chat and hands every event to emit until the done event or the
// end of the stream.
func (c *Client) ChatStream(ctx context.Context, service string, messages []api.ChatMessage, emit func(api.ChatEvent)) error {
	b, err := json.Marshal(server.ChatRequest{Messages: messages})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, servicePath(service, "chat/stream"), bytes.NewReader(b), "application/json")
	if err != nil {
		return err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return ClassifyConnectionError(err, c.endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev api.ChatEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("invalid chat event: %w", err)
		}
		emit(ev)
		if ev.Type == api.ChatEventDone {
			return nil
		}
	}
	return scanner.Err()
}

// RawConfig returns the service file of the running manager.
func (c *Client) RawConfig(ctx context.Context) (string, error) {
	var out server.ContentResponse
	_, err := c.doJSON(ctx, http.MethodGet, "/api/config", nil, &out)
	return out.Content, err
}

// ServiceConfig returns the stored entry of one service.
func (c *Client) ServiceConfig(ctx context.Context, name string) (config.ServiceDocument, error) {
	var out config.ServiceDocument
	_, err := c.doJSON(ctx, http.MethodGet, servicePath(name, "config"), nil, &out)
	return out, err
}

// Reload asks the manager to re-read its service file.
func (c *Client) Reload(ctx context.Context) (bool, error) {
	var out server.ReloadResponse
	_, err := c.doJSON(ctx, http.MethodPost, "/api/config/reload", nil, &out)
	return out.Reloaded, err
}
