package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

func TestMain(m *testing.M) {
	logging.InitForCLI(logging.LevelError, io.Discard)
	os.Exit(m.Run())
}

func newServer(t *testing.T, full bool) *httptest.Server {
	t.Helper()

	opts := []server.ServerOption{server.WithToolCapabilities(true)}
	if full {
		opts = append(opts, server.WithPromptCapabilities(true), server.WithResourceCapabilities(false, true))
	}
	s := server.NewMCPServer("fixture", "0.1.0", opts...)
	s.AddTool(mcp.NewTool("add",
		mcp.WithDescription("Add two numbers"),
		mcp.WithNumber("a", mcp.Required()),
		mcp.WithNumber("b", mcp.Required()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sum := req.GetFloat("a", 0) + req.GetFloat("b", 0)
		return mcp.NewToolResultText(strconv.FormatFloat(sum, 'f', -1, 64)), nil
	})
	if full {
		s.AddPrompt(mcp.NewPrompt("summarize", mcp.WithPromptDescription("Summarize text"), mcp.WithArgument("text")),
			func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
				return mcp.NewGetPromptResult("summary", nil), nil
			})
		s.AddResource(mcp.NewResource("file:///readme.md", "readme", mcp.WithMIMEType("text/markdown")),
			func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				return []mcp.ResourceContents{mcp.TextResourceContents{URI: "file:///readme.md", Text: "# hi"}}, nil
			})
	}

	ts := server.NewTestStreamableHTTPServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func targetFor(t *testing.T, ts *httptest.Server) Target {
	t.Helper()
	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return Target{Name: "fixture", Host: host, Port: p}
}

func TestListCapabilities(t *testing.T) {
	ts := newServer(t, true)
	g := New(Options{Timeout: 5 * time.Second})

	bundle, err := g.ListCapabilities(context.Background(), targetFor(t, ts))
	require.NoError(t, err)

	require.Len(t, bundle.Tools, 1)
	tool := bundle.Tools[0]
	assert.Equal(t, "add", tool.Name)
	assert.Equal(t, "Add two numbers", tool.Description)
	assert.False(t, tool.IsRaw())

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.Schema, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["properties"], "a")

	require.Len(t, bundle.Prompts, 1)
	assert.Equal(t, "summarize", bundle.Prompts[0].Name)
	assert.Contains(t, string(bundle.Prompts[0].Schema), "text")

	require.Len(t, bundle.Resources, 1)
	assert.Equal(t, "file:///readme.md", bundle.Resources[0].URI)
	assert.Equal(t, "text/markdown", bundle.Resources[0].MIMEType)
}

func TestListCapabilitiesWithoutPromptsOrResources(t *testing.T) {
	ts := newServer(t, false)
	g := New(Options{Timeout: 5 * time.Second})

	bundle, err := g.ListCapabilities(context.Background(), targetFor(t, ts))
	require.NoError(t, err)
	assert.Len(t, bundle.Tools, 1)
	assert.NotNil(t, bundle.Prompts)
	assert.Empty(t, bundle.Prompts)
	assert.Empty(t, bundle.Resources)
}

func TestListCapabilitiesUnreachable(t *testing.T) {
	ts := newServer(t, false)
	target := targetFor(t, ts)
	ts.Close()

	g := New(Options{Timeout: 2 * time.Second})
	_, err := g.ListCapabilities(context.Background(), target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture")
}

func TestInvokeTool(t *testing.T) {
	ts := newServer(t, false)
	g := New(Options{Timeout: 5 * time.Second})

	payload, err := g.InvokeTool(context.Background(), targetFor(t, ts), "add", json.RawMessage(`{"a": 2, "b": 3}`))
	require.NoError(t, err)
	assert.False(t, payload.IsRaw())

	var result mcp.CallToolResult
	require.NoError(t, json.Unmarshal(payload.JSON(), &result))
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	assert.Equal(t, "5", text.Text)
}

func TestInvokeToolRejectsMalformedParams(t *testing.T) {
	g := New(Options{})

	for _, params := range []string{`[1,2]`, `"text"`, `{broken`} {
		_, err := g.InvokeTool(context.Background(), Target{Name: "x", Port: 1}, "add", json.RawMessage(params))
		require.Error(t, err, params)
		assert.True(t, api.IsValidation(err), params)
	}

	_, err := g.InvokeTool(context.Background(), Target{Name: "x", Port: 1}, "", nil)
	assert.True(t, api.IsValidation(err))
}

func TestDecodeParams(t *testing.T) {
	args, err := decodeParams(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = decodeParams(json.RawMessage(" null "))
	require.NoError(t, err)
	assert.NotNil(t, args)

	args, err = decodeParams(json.RawMessage(`{"path": "/tmp"}`))
	require.NoError(t, err)
	assert.Equal(t, "/tmp", args["path"])
}

// newMalformedServer answers JSON-RPC by hand so tools/list can carry an item that does
// not fit the tool shape.
func newMalformedServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.ID) == 0 {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		var body string
		switch req.Method {
		case "initialize":
			body = `"result":{"protocolVersion":"2024-11-05","capabilities":{"tools":{}},"serverInfo":{"name":"fixture","version":"0.1.0"}}`
		case "tools/list":
			body = `"result":{"tools":[` +
				`{"name":"good","description":"fine","inputSchema":{"type":"object"}},` +
				`{"name":"bad","description":123,"inputSchema":{"type":"object"}}]}`
		default:
			body = `"error":{"code":-32601,"message":"Method not found"}`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,%s}`, req.ID, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestListCapabilitiesKeepsMalformedItemsAsRaw(t *testing.T) {
	ts := newMalformedServer(t)
	g := New(Options{Timeout: 5 * time.Second})

	bundle, err := g.ListCapabilities(context.Background(), targetFor(t, ts))
	require.NoError(t, err)

	require.Len(t, bundle.Tools, 2)
	assert.Equal(t, "good", bundle.Tools[0].Name)
	assert.Equal(t, "fine", bundle.Tools[0].Description)
	assert.False(t, bundle.Tools[0].IsRaw())

	bad := bundle.Tools[1]
	assert.True(t, bad.IsRaw())
	assert.Empty(t, bad.Name)
	assert.Contains(t, bad.Raw, `"description":123`)

	assert.Empty(t, bundle.Prompts)
	assert.Empty(t, bundle.Resources)
}

func TestToolCapabilityFallsBackToRaw(t *testing.T) {
	c := toolCapability(json.RawMessage(`{"description":"nameless"}`))
	assert.True(t, c.IsRaw())
	assert.Contains(t, c.Raw, "nameless")

	c = toolCapability(json.RawMessage(`"just a string"`))
	assert.True(t, c.IsRaw())
	assert.Equal(t, `"just a string"`, c.Raw)
}

func TestTargetEndpoint(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/mcp", Target{Host: "0.0.0.0", Port: 8080}.Endpoint())
	assert.Equal(t, "http://10.0.0.2:8080/mcp", Target{Host: "10.0.0.2", Port: 8080}.Endpoint())
}
