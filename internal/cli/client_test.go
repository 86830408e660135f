package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HorseSword/local-mcp-manager/internal/api"
)

func writeEnvelope(w http.ResponseWriter, status int, res api.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, api.OK("", map[string]int{"alive": 1}))
	})
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, api.OK("", map[string]string{"version": "1.2.3"}))
	})
	mux.HandleFunc("/api/services", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, api.OK("", []api.ServiceInfo{
			{Name: "echo", InType: "stdio", OutType: "http", Port: 18001, Enabled: true, Alive: true, Status: api.StatusOn, Tools: 1},
		}))
	})
	mux.HandleFunc("/api/services/echo/start", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		writeEnvelope(w, http.StatusOK, api.OK("Service echo started", nil))
	})
	mux.HandleFunc("/api/services/missing/start", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, api.Fail(api.NewServiceNotFoundError("missing")))
	})
	mux.HandleFunc("/api/services/echo/toggle", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, api.OK("", map[string]interface{}{"name": "echo", "is_enabled": false}))
	})
	mux.HandleFunc("/api/services/echo/call_tool", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ToolName   string          `json:"tool_name"`
			Parameters json.RawMessage `json:"parameters"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeEnvelope(w, http.StatusOK, api.OK("", map[string]interface{}{"tool": req.ToolName, "params": req.Parameters}))
	})
	mux.HandleFunc("/api/services/echo/info", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("refresh"))
		writeEnvelope(w, http.StatusOK, api.OK("", map[string]interface{}{
			"name":   "echo",
			"status": "ON",
			"capabilities": map[string]interface{}{
				"tools":     []map[string]string{{"name": "echo", "description": "Echo the message"}},
				"prompts":   []interface{}{},
				"resources": []interface{}{},
			},
		}))
	})
	mux.HandleFunc("/api/services/echo/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		_ = enc.Encode(api.ChatEvent{Type: api.ChatEventToolCall, Round: 1, Tool: "echo", Arguments: json.RawMessage(`{"message":"hi"}`)})
		_ = enc.Encode(api.ChatEvent{Type: api.ChatEventResponse, Content: "hi"})
		_ = enc.Encode(api.ChatEvent{Type: api.ChatEventDone})
		_ = enc.Encode(api.ChatEvent{Type: api.ChatEventResponse, Content: "after done"})
	})
	mux.HandleFunc("/api/services/missing/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, api.Fail(api.NewServiceNotFoundError("missing")))
	})
	mux.HandleFunc("/api/config/reload", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, api.OK("", map[string]bool{"reloaded": true}))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrips(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	assert.Equal(t, srv.URL, c.Endpoint())
	require.NoError(t, c.Health(ctx))

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)

	services, err := c.Services(ctx)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "echo", services[0].Name)
	assert.Equal(t, api.StatusOn, services[0].Status)

	msg, err := c.Start(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "Service echo started", msg)

	enabled, err := c.Toggle(ctx, "echo")
	require.NoError(t, err)
	assert.False(t, enabled)

	reloaded, err := c.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
}

func TestClientNotFound(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL, time.Second)

	_, err := c.Start(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUnavailable(err))
	assert.Equal(t, "Service missing does not exist.", err.Error())
}

func TestClientCallTool(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL, time.Second)

	raw, err := c.CallTool(context.Background(), "echo", "echo", json.RawMessage(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tool":"echo","params":{"message":"hi"}}`, string(raw))
}

func TestClientCapabilities(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL, time.Second)

	entry, err := c.Capabilities(context.Background(), "echo", true)
	require.NoError(t, err)
	assert.Equal(t, api.StatusOn, entry.Status)
	require.NotNil(t, entry.Capabilities)
	require.Len(t, entry.Capabilities.Tools, 1)
	assert.Equal(t, "Echo the message", entry.Capabilities.Tools[0].Description)
}

func TestClientChatStreamStopsAtDone(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL, time.Second)

	var events []api.ChatEvent
	err := c.ChatStream(context.Background(), "echo", []api.ChatMessage{{Role: "user", Content: "hi"}}, func(ev api.ChatEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, api.ChatEventToolCall, events[0].Type)
	assert.Equal(t, "hi", events[1].Content)
	assert.Equal(t, api.ChatEventDone, events[2].Type)
}

func TestClientChatStreamUnknownService(t *testing.T) {
	srv := newTestAPI(t)
	c := NewClient(srv.URL, time.Second)

	err := c.ChatStream(context.Background(), "missing", nil, func(api.ChatEvent) {
		t.Fatal("no events expected")
	})
	assert.True(t, IsNotFound(err))
}

func TestClientInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>not the manager</html>")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Services(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid response")
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	err := NewClient(endpoint, time.Second).Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "local-mcp-manager serve")
}
