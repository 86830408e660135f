package proxy

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HorseSword/local-mcp-manager/internal/mcpclient"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// toolHandlerFactory creates a handler that forwards a tool call to the backend.
func toolHandlerFactory(backend mcpclient.MCPClient, subsystem, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logging.Debug(subsystem, "Forwarding tool call %s", name)
		result, err := backend.CallTool(ctx, name, req.Params.Arguments)
		if err != nil {
			return nil, fmt.Errorf("tool execution failed: %w", err)
		}
		return result, nil
	}
}

// promptHandlerFactory creates a handler that forwards prompts/get to the backend.
func promptHandlerFactory(backend mcpclient.MCPClient, name string) server.PromptHandlerFunc {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		result, err := backend.GetPrompt(ctx, name, req.Params.Arguments)
		if err != nil {
			return nil, fmt.Errorf("prompt retrieval failed: %w", err)
		}
		return result, nil
	}
}

// resourceHandlerFactory creates a handler that forwards resources/read to the backend.
func resourceHandlerFactory(backend mcpclient.MCPClient, uri string) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		result, err := backend.ReadResource(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("resource read failed: %w", err)
		}

		var contents []mcp.ResourceContents
		if result != nil && len(result.Contents) > 0 {
			contents = result.Contents
		}
		return contents, nil
	}
}
