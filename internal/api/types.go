package api

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// ServiceStatus is the capability-level state of a managed service.
//
//	OFF -> LOADING -> ON | ERROR
//	ON | ERROR -> STOPPED (explicit stop) -> OFF
//
// STOPPED survives the first refresh that sees the process dead and becomes OFF on
// the second one.
type ServiceStatus string

const (
	StatusOff     ServiceStatus = "OFF"
	StatusLoading ServiceStatus = "LOADING"
	StatusOn      ServiceStatus = "ON"
	StatusError   ServiceStatus = "ERROR"
	StatusStopped ServiceStatus = "STOPPED"
)

// TransportKind tags which branch of Transport is populated.
type TransportKind string

const (
	TransportLocal  TransportKind = "local"
	TransportRemote TransportKind = "remote"
)

// Remote endpoint protocols.
const (
	RemoteStreamableHTTP = "streamable-http"
	RemoteSSE            = "sse"
)

// LocalTransport launches an MCP server that speaks JSON-RPC over stdio.
type LocalTransport struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// OAuthClientCredentials configures a client-credentials token source for a remote endpoint.
type OAuthClientCredentials struct {
	TokenURL     string   `json:"tokenUrl"`
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// RemoteTransport points at an MCP server that is already reachable over the network.
type RemoteTransport struct {
	URL     string                  `json:"url"`
	Type    string                  `json:"type"`
	Headers map[string]string       `json:"headers,omitempty"`
	OAuth   *OAuthClientCredentials `json:"oauth,omitempty"`
}

// Transport is a tagged union: exactly one of Local or Remote is set, matching Kind.
type Transport struct {
	Kind   TransportKind    `json:"kind"`
	Local  *LocalTransport  `json:"local,omitempty"`
	Remote *RemoteTransport `json:"remote,omitempty"`
}

// NewLocalTransport builds a local transport.
func NewLocalTransport(l LocalTransport) Transport {
	return Transport{Kind: TransportLocal, Local: &l}
}

// NewRemoteTransport builds a remote transport.
func NewRemoteTransport(r RemoteTransport) Transport {
	return Transport{Kind: TransportRemote, Remote: &r}
}

// Validate enforces the union invariant.
func (t Transport) Validate() error {
	switch t.Kind {
	case TransportLocal:
		if t.Remote != nil {
			return NewValidationError("transport", "local transport must not carry a remote endpoint")
		}
		if t.Local == nil || strings.TrimSpace(t.Local.Command) == "" {
			return NewValidationError("command", "local transport requires a command")
		}
	case TransportRemote:
		if t.Local != nil {
			return NewValidationError("transport", "remote transport must not carry a local command")
		}
		if t.Remote == nil || strings.TrimSpace(t.Remote.URL) == "" {
			return NewValidationError("url", "remote transport requires a url")
		}
		if t.Remote.Type != RemoteStreamableHTTP && t.Remote.Type != RemoteSSE {
			return NewValidationError("type", fmt.Sprintf("unsupported remote type %q", t.Remote.Type))
		}
	default:
		return NewValidationError("transport", fmt.Sprintf("unknown transport kind %q", t.Kind))
	}
	return nil
}

// InType reports the inbound protocol the way the service list shows it: stdio, sse or http.
func (t Transport) InType() string {
	switch {
	case t.Kind == TransportLocal:
		return "stdio"
	case t.Remote != nil && t.Remote.Type == RemoteSSE:
		return "sse"
	default:
		return "http"
	}
}

// OutType is the protocol every wrapped service is re-exposed with.
const OutType = "http"

// Endpoint builds the re-proxied MCP endpoint URL for a bind host and port.
// Hosts that already carry a scheme are kept, wildcard and loopback binds are
// reached through 127.0.0.1, and IPv6 literals are bracketed.
func Endpoint(host string, port int) string {
	h := strings.TrimSpace(host)
	if strings.HasPrefix(h, "http") {
		return fmt.Sprintf("%s:%d/mcp", strings.TrimRight(h, "/"), port)
	}
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	switch h {
	case "", "127.0.0.1", "0.0.0.0", "localhost", "::":
		h = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(h, strconv.Itoa(port)) + "/mcp"
}

// Capability describes one tool, prompt or resource a service advertises.
// Items that could not be decoded into the typed form carry only Raw.
type Capability struct {
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"inputSchema,omitempty"`
	URI         string          `json:"uri,omitempty"`
	MIMEType    string          `json:"mimeType,omitempty"`
	Raw         string          `json:"raw,omitempty"`
}

// IsRaw reports whether the capability is the stringified fallback form.
func (c Capability) IsRaw() bool {
	return c.Raw != ""
}

// CapabilityBundle is the discovered {tools, prompts, resources} triple of one service.
type CapabilityBundle struct {
	Tools     []Capability `json:"tools"`
	Prompts   []Capability `json:"prompts"`
	Resources []Capability `json:"resources"`
}

// Tool looks up a tool by name.
func (b *CapabilityBundle) Tool(name string) (Capability, bool) {
	if b == nil {
		return Capability{}, false
	}
	for _, t := range b.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Capability{}, false
}

// Count returns the number of items across all three lists.
func (b *CapabilityBundle) Count() int {
	if b == nil {
		return 0
	}
	return len(b.Tools) + len(b.Prompts) + len(b.Resources)
}

// ServiceInfo is the externally visible snapshot of one managed service.
type ServiceInfo struct {
	Name      string        `json:"name"`
	InType    string        `json:"in_type"`
	OutType   string        `json:"out_type"`
	Host      string        `json:"host"`
	Port      int           `json:"port"`
	Endpoint  string        `json:"endpoint"`
	Enabled   bool          `json:"is_enabled"`
	Alive     bool          `json:"is_alive"`
	Status    ServiceStatus `json:"status"`
	PID       int           `json:"pid,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Tools     int           `json:"tool_count"`
}

// BulkResult collects per-service outcomes of a bulk start or stop.
type BulkResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Add records the outcome for one service.
func (r *BulkResult) Add(name string, err error) {
	if err == nil {
		r.Succeeded = append(r.Succeeded, name)
		return
	}
	if r.Failed == nil {
		r.Failed = make(map[string]string)
	}
	r.Failed[name] = err.Error()
}

// Sort orders Succeeded by name, for stable output.
func (r *BulkResult) Sort() {
	sort.Strings(r.Succeeded)
}

// Result is the success/failure envelope every HTTP answer is wrapped in.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OK builds a successful envelope.
func OK(message string, data interface{}) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail builds a failed envelope from err.
func Fail(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
