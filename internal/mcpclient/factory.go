package mcpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// Options tune clients built by New.
type Options struct {
	// Stderr receives a local child's stderr.
	Stderr io.Writer
	// HTTPClient overrides the HTTP client of remote transports. An OAuth block on the
	// transport takes precedence.
	HTTPClient *http.Client
}

// New creates the appropriate MCP client for the transport.
//
// Supported transports:
//   - local: StdioClient
//   - remote streamable-http: StreamableHTTPClient
//   - remote sse: SSEClient
//
// Remote transports with an oauth block get an HTTP client that fetches and refreshes
// tokens with the client-credentials grant.
func New(ctx context.Context, t api.Transport, opts Options) (MCPClient, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	switch t.Kind {
	case api.TransportLocal:
		c := NewStdioClient(t.Local.Command, t.Local.Args, t.Local.Env, t.Local.Cwd)
		c.Stderr = opts.Stderr
		return c, nil

	case api.TransportRemote:
		httpClient := opts.HTTPClient
		if t.Remote.OAuth != nil {
			httpClient = OAuthHTTPClient(ctx, *t.Remote.OAuth, httpClient)
		}
		if t.Remote.Type == api.RemoteSSE {
			return NewSSEClient(t.Remote.URL, t.Remote.Headers, httpClient), nil
		}
		return NewStreamableHTTPClient(t.Remote.URL, t.Remote.Headers, httpClient), nil
	}

	return nil, fmt.Errorf("unsupported transport kind: %s", t.Kind)
}

// OAuthHTTPClient returns an HTTP client that authenticates with the client-credentials grant.
// base, when non-nil, is used for the token endpoint and as the underlying transport.
// ctx must outlive the returned client since token refreshes use it.
func OAuthHTTPClient(ctx context.Context, cfg api.OAuthClientCredentials, base *http.Client) *http.Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	logging.Debug("MCPClientFactory", "Using client-credentials OAuth against %s", cfg.TokenURL)
	return cc.Client(ctx)
}
