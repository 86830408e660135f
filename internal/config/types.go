package config

import (
	"strings"

	"github.com/HorseSword/local-mcp-manager/internal/api"
)

// File is the decoded service configuration document.
type File struct {
	MCPServers map[string]ServiceEntry `json:"mcpServers"`
}

// ServiceEntry is one item of the mcpServers object.
type ServiceEntry struct {
	// ID is the key of the entry inside mcpServers.
	ID string `json:"-"`

	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`

	URL     string                      `json:"url,omitempty"`
	Type    string                      `json:"type,omitempty"`
	Headers map[string]string           `json:"headers,omitempty"`
	OAuth   *api.OAuthClientCredentials `json:"oauth,omitempty"`

	Host     string `json:"host,omitempty"`
	OutPort  int    `json:"out_port"`
	IsActive *bool  `json:"isActive,omitempty"`
}

// DefaultHost is the bind host used when an entry has none.
const DefaultHost = "127.0.0.1"

// ServiceName returns the display name, falling back to the entry id.
func (e ServiceEntry) ServiceName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// BindHost returns the configured host or DefaultHost.
func (e ServiceEntry) BindHost() string {
	if e.Host != "" {
		return e.Host
	}
	return DefaultHost
}

// Enabled reports isActive, defaulting to true.
func (e ServiceEntry) Enabled() bool {
	return e.IsActive == nil || *e.IsActive
}

// Transport infers the transport from the entry. A command wins over a url.
func (e ServiceEntry) Transport() api.Transport {
	if strings.TrimSpace(e.Command) != "" {
		return api.NewLocalTransport(api.LocalTransport{
			Command: e.Command,
			Args:    e.Args,
			Cwd:     e.Cwd,
			Env:     e.Env,
		})
	}
	return api.NewRemoteTransport(api.RemoteTransport{
		URL:     e.URL,
		Type:    remoteType(e.Type, e.URL),
		Headers: e.Headers,
		OAuth:   e.OAuth,
	})
}

// remoteType normalizes the spellings seen in MCP client configs.
func remoteType(declared, url string) string {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "sse":
		return api.RemoteSSE
	case "http", "streamable-http", "streamablehttp", "streamable_http":
		return api.RemoteStreamableHTTP
	case "":
		if strings.Contains(url, "/sse") {
			return api.RemoteSSE
		}
		return api.RemoteStreamableHTTP
	default:
		return declared
	}
}
