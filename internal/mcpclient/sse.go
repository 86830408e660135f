package mcpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// SSEClient implements the MCPClient interface using the HTTP+SSE transport.
type SSEClient struct {
	baseMCPClient
	url        string
	headers    map[string]string
	httpClient *http.Client
}

// NewSSEClient creates an SSE client. httpClient may be nil.
func NewSSEClient(url string, headers map[string]string, httpClient *http.Client) *SSEClient {
	return &SSEClient{
		url:        url,
		headers:    headers,
		httpClient: httpClient,
	}
}

// Initialize opens the event stream and performs the protocol handshake.
// The stream outlives ctx; it is closed by Close.
func (c *SSEClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	var opts []transport.ClientOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHeaders(c.headers))
	}
	if c.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(c.httpClient))
	}

	mcpClient, err := client.NewSSEMCPClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SSE client: %w", err)
	}

	if err := mcpClient.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start SSE transport: %w", err)
	}

	result, err := c.handshake(ctx, mcpClient)
	if err != nil {
		mcpClient.Close()
		return err
	}

	logging.Debug("SSEClient", "Connected to %s, server %s %s",
		c.url, result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}
