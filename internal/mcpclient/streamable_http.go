package mcpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// StreamableHTTPClient implements the MCPClient interface using StreamableHTTP transport.
type StreamableHTTPClient struct {
	baseMCPClient
	url        string
	headers    map[string]string
	httpClient *http.Client
}

// NewStreamableHTTPClient creates a StreamableHTTP client. httpClient may be nil.
func NewStreamableHTTPClient(url string, headers map[string]string, httpClient *http.Client) *StreamableHTTPClient {
	return &StreamableHTTPClient{
		url:        url,
		headers:    headers,
		httpClient: httpClient,
	}
}

// Initialize establishes the connection and performs protocol handshake
func (c *StreamableHTTPClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	var opts []transport.StreamableHTTPCOption
	if len(c.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.headers))
	}
	if c.httpClient != nil {
		opts = append(opts, transport.WithHTTPBasicClient(c.httpClient))
	}

	mcpClient, err := client.NewStreamableHttpClient(c.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to create StreamableHTTP client: %w", err)
	}

	result, err := c.handshake(ctx, mcpClient)
	if err != nil {
		mcpClient.Close()
		return err
	}

	logging.Debug("StreamableHTTPClient", "Connected to %s, server %s %s",
		c.url, result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}
