package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/mcpclient"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const subsystem = "Gateway"

// DefaultTimeout bounds one discovery or invocation.
const DefaultTimeout = 30 * time.Second

// Target is a resolved service endpoint.
type Target struct {
	Name string
	Host string
	Port int
}

// Endpoint returns the MCP URL of the target.
func (t Target) Endpoint() string {
	return api.Endpoint(t.Host, t.Port)
}

// Dialer opens an uninitialized MCP client for an endpoint URL.
type Dialer func(url string) mcpclient.MCPClient

// Options configure a Gateway.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	// Dialer overrides the streamable HTTP client.
	Dialer Dialer
}

// Gateway talks to wrapped services over MCP streamable HTTP. Every call uses its own
// connection, so calls are independent and safe to retry.
type Gateway struct {
	timeout time.Duration
	dial    Dialer
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	dial := opts.Dialer
	if dial == nil {
		httpClient := opts.HTTPClient
		dial = func(url string) mcpclient.MCPClient {
			return mcpclient.NewStreamableHTTPClient(url, nil, httpClient)
		}
	}
	return &Gateway{timeout: opts.Timeout, dial: dial}
}

// session opens a transient initialized client. The returned cleanup closes it and
// releases the timeout.
func (g *Gateway) session(ctx context.Context, target Target) (context.Context, mcpclient.MCPClient, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	c := g.dial(target.Endpoint())
	if err := c.Initialize(ctx); err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect to %s at %s: %w", target.Name, target.Endpoint(), err)
	}
	return ctx, c, func() {
		if err := c.Close(); err != nil {
			logging.Debug(subsystem, "Closing client for %s: %v", target.Name, err)
		}
		cancel()
	}, nil
}

// ListCapabilities discovers the tools, prompts and resources of target. A server that
// does not implement prompts or resources yields empty lists for them.
func (g *Gateway) ListCapabilities(ctx context.Context, target Target) (api.CapabilityBundle, error) {
	ctx, c, done, err := g.session(ctx, target)
	if err != nil {
		return api.CapabilityBundle{}, err
	}
	defer done()

	bundle := api.CapabilityBundle{
		Tools:     []api.Capability{},
		Prompts:   []api.Capability{},
		Resources: []api.Capability{},
	}

	tools, err := c.ListRaw(ctx, "tools/list", "tools")
	if err != nil {
		return api.CapabilityBundle{}, fmt.Errorf("list tools of %s: %w", target.Name, err)
	}
	for _, t := range tools {
		bundle.Tools = append(bundle.Tools, toolCapability(t))
	}

	prompts, err := c.ListRaw(ctx, "prompts/list", "prompts")
	switch {
	case err == nil:
		for _, p := range prompts {
			bundle.Prompts = append(bundle.Prompts, promptCapability(p))
		}
	case mcpclient.IsMethodNotFound(err):
	default:
		return api.CapabilityBundle{}, fmt.Errorf("list prompts of %s: %w", target.Name, err)
	}

	resources, err := c.ListRaw(ctx, "resources/list", "resources")
	switch {
	case err == nil:
		for _, r := range resources {
			bundle.Resources = append(bundle.Resources, resourceCapability(r))
		}
	case mcpclient.IsMethodNotFound(err):
	default:
		return api.CapabilityBundle{}, fmt.Errorf("list resources of %s: %w", target.Name, err)
	}

	logging.Debug(subsystem, "Discovered %d tools, %d prompts, %d resources on %s",
		len(bundle.Tools), len(bundle.Prompts), len(bundle.Resources), target.Name)
	return bundle, nil
}

// InvokeTool calls tool on target. params must be empty or a JSON object. The result is
// the decoded tool result, or its string form when it cannot be represented as JSON.
func (g *Gateway) InvokeTool(ctx context.Context, target Target, tool string, params json.RawMessage) (api.Payload, error) {
	if tool == "" {
		return api.Payload{}, api.NewValidationError("tool_name", "tool name is required")
	}
	args, err := decodeParams(params)
	if err != nil {
		return api.Payload{}, err
	}

	ctx, c, done, err := g.session(ctx, target)
	if err != nil {
		return api.Payload{}, err
	}
	defer done()

	result, err := c.CallTool(ctx, tool, args)
	if err != nil {
		return api.Payload{}, fmt.Errorf("call %s on %s: %w", tool, target.Name, err)
	}
	if result.IsError {
		logging.Debug(subsystem, "Tool %s on %s reported an error result", tool, target.Name)
	}
	return api.DecodePayload(result), nil
}

func decodeParams(params json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, &api.ValidationError{Field: "parameters", Message: "parameters must be a JSON object", Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// typedItem is the common shape every capability item is decoded into.
type typedItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Arguments   json.RawMessage `json:"arguments"`
	URI         string          `json:"uri"`
	MIMEType    string          `json:"mimeType"`
}

// decodeItem decodes one list item. Items that do not fit typedItem, or carry no
// name, fall back to their string form.
func decodeItem(raw json.RawMessage) (typedItem, bool) {
	var item typedItem
	if err := json.Unmarshal(raw, &item); err != nil || item.Name == "" {
		return item, false
	}
	return item, true
}

func rawCapability(raw json.RawMessage) api.Capability {
	return api.Capability{Raw: string(bytes.TrimSpace(raw))}
}

func toolCapability(raw json.RawMessage) api.Capability {
	item, ok := decodeItem(raw)
	if !ok {
		return rawCapability(raw)
	}
	return api.Capability{Name: item.Name, Description: item.Description, Schema: item.InputSchema}
}

func promptCapability(raw json.RawMessage) api.Capability {
	item, ok := decodeItem(raw)
	if !ok {
		return rawCapability(raw)
	}
	return api.Capability{Name: item.Name, Description: item.Description, Schema: item.Arguments}
}

func resourceCapability(raw json.RawMessage) api.Capability {
	item, ok := decodeItem(raw)
	if !ok {
		return rawCapability(raw)
	}
	return api.Capability{Name: item.Name, Description: item.Description, URI: item.URI, MIMEType: item.MIMEType}
}
