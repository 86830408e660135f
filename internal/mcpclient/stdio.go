package mcpclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// StdioClient spawns a local MCP server and talks to it over stdin/stdout.
// The child's stderr is copied to Stderr, line logged by default.
type StdioClient struct {
	baseMCPClient
	command string
	args    []string
	env     map[string]string
	cwd     string

	// Stderr receives the child's stderr. Nil discards it.
	Stderr io.Writer
}

// NewStdioClient creates a new stdio-based MCP client
func NewStdioClient(command string, args []string, env map[string]string, cwd string) *StdioClient {
	return &StdioClient{
		command: command,
		args:    args,
		env:     env,
		cwd:     cwd,
	}
}

// Initialize starts the child process and performs the protocol handshake.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug("StdioClient", "Starting %s %v (cwd=%q)", c.command, c.args, c.cwd)

	mcpClient, err := client.NewStdioMCPClientWithOptions(c.command, envSlice(c.env), c.args,
		transport.WithCommandFunc(c.buildCommand))
	if err != nil {
		return fmt.Errorf("failed to create stdio client: %w", err)
	}

	if stderr, ok := client.GetStderr(mcpClient); ok {
		go c.copyStderr(stderr)
	}

	result, err := c.handshake(ctx, mcpClient)
	if err != nil {
		logging.Error("StdioClient", err, "Failed to initialize MCP protocol for %s", c.command)
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug("StdioClient", "Error closing failed client for %s: %v", c.command, closeErr)
		}
		return err
	}

	logging.Debug("StdioClient", "Initialized %s, server %s %s", c.command,
		result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}

func (c *StdioClient) buildCommand(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), env...)
	if c.cwd != "" {
		info, err := os.Stat(c.cwd)
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("working directory %s is not a directory", c.cwd)
		}
		cmd.Dir = c.cwd
	}
	return cmd, nil
}

func (c *StdioClient) copyStderr(r io.Reader) {
	dst := c.Stderr
	if dst == nil {
		dst = io.Discard
	}
	_, _ = io.Copy(dst, r)
}

func envSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
