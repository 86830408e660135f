package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/mcpclient"
)

// fakeBackend is an in-memory MCPClient.
type fakeBackend struct {
	tools     []mcp.Tool
	prompts   []mcp.Prompt
	resources []mcp.Resource
	pingErr   error
	closed    bool
}

func (f *fakeBackend) Initialize(ctx context.Context) error { return nil }
func (f *fakeBackend) Close() error                         { f.closed = true; return nil }
func (f *fakeBackend) ServerCapabilities() mcp.ServerCapabilities {
	return mcp.ServerCapabilities{}
}
func (f *fakeBackend) ListTools(ctx context.Context) ([]mcp.Tool, error) { return f.tools, nil }
func (f *fakeBackend) CallTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	if name == "fail" {
		return nil, errors.New("backend exploded")
	}
	m, _ := args.(map[string]any)
	return mcp.NewToolResultText(name + ":" + m["text"].(string)), nil
}
func (f *fakeBackend) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	if f.resources == nil {
		return nil, mcp.ErrMethodNotFound
	}
	return f.resources, nil
}
func (f *fakeBackend) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: "content of " + uri},
	}}, nil
}
func (f *fakeBackend) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	if f.prompts == nil {
		return nil, mcp.ErrMethodNotFound
	}
	return f.prompts, nil
}
func (f *fakeBackend) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	return mcp.NewGetPromptResult(name, []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent("hi "+args["who"])),
	}), nil
}
func (f *fakeBackend) Ping(ctx context.Context) error { return f.pingErr }
func (f *fakeBackend) ListRaw(ctx context.Context, method, field string) ([]json.RawMessage, error) {
	return nil, mcp.ErrMethodNotFound
}

func newFake() *fakeBackend {
	return &fakeBackend{
		tools: []mcp.Tool{
			mcp.NewTool("echo", mcp.WithDescription("Echo"), mcp.WithString("text")),
			mcp.NewTool("fail"),
		},
		prompts:   []mcp.Prompt{mcp.NewPrompt("greet", mcp.WithArgument("who"))},
		resources: []mcp.Resource{mcp.NewResource("file:///readme", "readme", mcp.WithMIMEType("text/plain"))},
	}
}

func connect(t *testing.T, url string) *mcpclient.StreamableHTTPClient {
	t.Helper()
	c := mcpclient.NewStreamableHTTPClient(url, nil, nil)
	require.NoError(t, c.Initialize(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestProxy_MirrorsBackend(t *testing.T) {
	ctx := context.Background()
	backend := newFake()
	p := New(Config{Name: "fixture", HealthInterval: -1}, backend)
	require.NoError(t, p.Connect(ctx))

	ts := httptest.NewServer(p.Handler())
	defer ts.Close()
	c := connect(t, ts.URL+EndpointPath)

	tools, err := c.ListTools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"echo", "fail"}, toolNames(tools))

	result, err := c.CallTool(ctx, "echo", map[string]any{"text": "abc"})
	require.NoError(t, err)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, "echo:abc", text.Text)

	failed, err := c.CallTool(ctx, "fail", map[string]any{})
	if err == nil {
		assert.True(t, failed.IsError)
	}

	prompts, err := c.ListPrompts(ctx)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	prompt, err := c.GetPrompt(ctx, "greet", map[string]string{"who": "ann"})
	require.NoError(t, err)
	msg, ok := mcp.AsTextContent(prompt.Messages[0].Content)
	require.True(t, ok)
	assert.Equal(t, "hi ann", msg.Text)

	resources, err := c.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	read, err := c.ReadResource(ctx, "file:///readme")
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
}

func TestProxy_BackendWithoutPrompts(t *testing.T) {
	ctx := context.Background()
	backend := newFake()
	backend.prompts = nil
	backend.resources = nil

	p := New(Config{Name: "tools-only", HealthInterval: -1}, backend)
	require.NoError(t, p.Connect(ctx))

	ts := httptest.NewServer(p.Handler())
	defer ts.Close()
	c := connect(t, ts.URL+EndpointPath)

	prompts, err := c.ListPrompts(ctx)
	require.NoError(t, err)
	assert.Empty(t, prompts)
}

func TestProxy_ChainedOverRealServer(t *testing.T) {
	ctx := context.Background()

	upstream := server.NewMCPServer("upstream", "1.0.0", server.WithToolCapabilities(true))
	upstream.AddTool(mcp.NewTool("add", mcp.WithNumber("a"), mcp.WithNumber("b")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultStructuredOnly(map[string]any{"sum": req.GetFloat("a", 0) + req.GetFloat("b", 0)}), nil
		})
	uts := server.NewTestStreamableHTTPServer(upstream)
	defer uts.Close()

	backend := mcpclient.NewStreamableHTTPClient(uts.URL, nil, nil)
	p := New(Config{Name: "chained", HealthInterval: -1}, backend)
	require.NoError(t, p.Connect(ctx))
	defer backend.Close()

	ts := httptest.NewServer(p.Handler())
	defer ts.Close()
	c := connect(t, ts.URL+EndpointPath)

	result, err := c.CallTool(ctx, "add", map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(5)}, result.StructuredContent)
}

func TestProxy_RunStopsOnContext(t *testing.T) {
	backend := newFake()
	p := New(Config{
		Name:           "runner",
		Host:           "127.0.0.1",
		Port:           0,
		Transport:      api.NewLocalTransport(api.LocalTransport{Command: "fake"}),
		HealthInterval: -1,
	}, backend)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, backend.closed)
}

func TestProxy_RunEndsWhenLocalBackendDies(t *testing.T) {
	backend := newFake()
	backend.pingErr = errors.New("broken pipe")
	p := New(Config{
		Name:           "dying",
		Host:           "127.0.0.1",
		Port:           0,
		Transport:      api.NewLocalTransport(api.LocalTransport{Command: "fake"}),
		HealthInterval: 20 * time.Millisecond,
	}, backend)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken pipe")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after backend failure")
	}
}

func TestListenAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:18001", ListenAddr("", 18001))
	assert.Equal(t, "0.0.0.0:18001", ListenAddr("0.0.0.0", 18001))
	assert.Equal(t, "myhost:80", ListenAddr("http://myhost/", 80))
	assert.Equal(t, "[::1]:9000", ListenAddr("::1", 9000))
}
