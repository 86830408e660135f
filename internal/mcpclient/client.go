package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ProtocolVersion is announced during the initialize handshake.
const ProtocolVersion = "2024-11-05"

// DefaultInitTimeout bounds Initialize when the caller's context has no deadline.
const DefaultInitTimeout = 10 * time.Second

// ClientName is announced as clientInfo.name.
var ClientName = "local-mcp-manager"

// ClientVersion is announced as clientInfo.version. Set by the cmd package at startup.
var ClientVersion = "dev"

// MCPClient defines the interface for MCP client implementations.
// All transport types (stdio, SSE, streamable-http) implement this interface,
// enabling polymorphic usage and easier testing with fakes.
type MCPClient interface {
	// Initialize establishes the connection and performs protocol handshake
	Initialize(ctx context.Context) error
	// Close cleanly shuts down the client connection
	Close() error
	// ServerCapabilities returns what the server announced during initialize
	ServerCapabilities() mcp.ServerCapabilities
	// ListTools returns all available tools from the server
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	// CallTool executes a specific tool and returns the result
	CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error)
	// ListResources returns all available resources from the server
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	// ReadResource retrieves a specific resource
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	// ListPrompts returns all available prompts from the server
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	// GetPrompt retrieves a specific prompt
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	// Ping checks if the server is responsive
	Ping(ctx context.Context) error
	// ListRaw sends a paginated list method such as tools/list and returns the items
	// of the result field undecoded
	ListRaw(ctx context.Context, method, field string) ([]json.RawMessage, error)
}

var (
	_ MCPClient = (*StdioClient)(nil)
	_ MCPClient = (*SSEClient)(nil)
	_ MCPClient = (*StreamableHTTPClient)(nil)
)

// ErrNotConnected is returned by every call made before Initialize succeeded or after Close.
var ErrNotConnected = errors.New("client not connected")

// IsMethodNotFound reports whether err is the JSON-RPC method-not-found error, which servers
// return for prompts/* or resources/* when they do not offer that capability.
func IsMethodNotFound(err error) bool {
	return errors.Is(err, mcp.ErrMethodNotFound)
}

// baseMCPClient holds the shared protocol operations. The transport specific types
// only differ in how they build and start the underlying mcp-go client.
type baseMCPClient struct {
	client       client.MCPClient
	capabilities mcp.ServerCapabilities
	mu           sync.RWMutex
	connected    bool
}

// Caller must hold at least a read lock on mu.
func (b *baseMCPClient) checkConnected() error {
	if !b.connected || b.client == nil {
		return ErrNotConnected
	}
	return nil
}

// handshake runs initialize on c and records the result. Caller must hold the write lock.
func (b *baseMCPClient) handshake(ctx context.Context, c client.MCPClient) (*mcp.InitializeResult, error) {
	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, DefaultInitTimeout)
		defer cancel()
	}

	result, err := c.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: ProtocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: ClientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	b.client = c
	b.capabilities = result.Capabilities
	b.connected = true
	return result, nil
}

func (b *baseMCPClient) ServerCapabilities() mcp.ServerCapabilities {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.capabilities
}

func (b *baseMCPClient) closeClient() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected || b.client == nil {
		return nil
	}

	err := b.client.Close()
	b.connected = false
	b.client = nil

	return err
}

func (b *baseMCPClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseMCPClient) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}
	return result, nil
}

func (b *baseMCPClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseMCPClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}
	return result, nil
}

func (b *baseMCPClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *baseMCPClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}

	result, err := b.client.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return result, nil
}

// transportClient is satisfied by the mcp-go client, which exposes its transport.
type transportClient interface {
	GetTransport() transport.Interface
}

// ListRaw follows nextCursor until the list is complete. Items are kept as raw JSON so
// one malformed item does not fail the whole list.
func (b *baseMCPClient) ListRaw(ctx context.Context, method, field string) ([]json.RawMessage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	tc, ok := b.client.(transportClient)
	if !ok {
		return nil, fmt.Errorf("client does not expose its transport")
	}

	var items []json.RawMessage
	var cursor string
	for {
		var params any
		if cursor != "" {
			params = map[string]string{"cursor": cursor}
		}
		resp, err := tc.GetTransport().SendRequest(ctx, transport.JSONRPCRequest{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      mcp.NewRequestId("list-" + uuid.NewString()),
			Method:  method,
			Params:  params,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to send %s: %w", method, err)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%s failed: %w", method, resp.Error.AsError())
		}

		var page map[string]json.RawMessage
		if err := json.Unmarshal(resp.Result, &page); err != nil {
			return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		var pageItems []json.RawMessage
		if raw, ok := page[field]; ok && string(raw) != "null" {
			if err := json.Unmarshal(raw, &pageItems); err != nil {
				return nil, fmt.Errorf("%s result field %q is not a list: %w", method, field, err)
			}
		}
		items = append(items, pageItems...)

		cursor = ""
		if next, ok := page["nextCursor"]; ok {
			_ = json.Unmarshal(next, &cursor)
		}
		if cursor == "" {
			return items, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (b *baseMCPClient) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.client.Ping(ctx)
}

// Close cleanly shuts down the client connection
func (b *baseMCPClient) Close() error {
	return b.closeClient()
}
