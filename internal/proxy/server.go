package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/mcpclient"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// EndpointPath is where the re-exposed MCP server is mounted.
const EndpointPath = "/mcp"

// DefaultHealthInterval is how often the backend is pinged.
const DefaultHealthInterval = 10 * time.Second

// Config describes one wrapped service.
type Config struct {
	Name      string
	Version   string
	Transport api.Transport
	Host      string
	Port      int

	// Stderr receives the stderr of a local backend.
	Stderr io.Writer

	// HealthInterval overrides DefaultHealthInterval. Negative disables health checks.
	HealthInterval time.Duration
}

// Server mirrors a backend MCP service onto a streamable HTTP endpoint.
type Server struct {
	cfg       Config
	backend   mcpclient.MCPClient
	subsystem string

	mcpServer  *server.MCPServer
	streamable *server.StreamableHTTPServer

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

// New creates a proxy around an uninitialized backend client.
func New(cfg Config, backend mcpclient.MCPClient) *Server {
	if cfg.Version == "" {
		cfg.Version = mcpclient.ClientVersion
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}

	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithPromptCapabilities(true),
		server.WithResourceCapabilities(false, true),
	)

	return &Server{
		cfg:        cfg,
		backend:    backend,
		subsystem:  "Proxy:" + cfg.Name,
		mcpServer:  mcpServer,
		streamable: server.NewStreamableHTTPServer(mcpServer),
	}
}

// Handler returns the HTTP handler serving the MCP endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(EndpointPath, s.streamable)
	return mux
}

// Connect initializes the backend and mirrors its capabilities.
func (s *Server) Connect(ctx context.Context) error {
	if err := s.backend.Initialize(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w", s.cfg.Name, err)
	}
	return s.Sync(ctx)
}

// Sync lists the backend's tools, prompts and resources and registers a forwarding
// handler for each. Prompts and resources are optional on the backend.
func (s *Server) Sync(ctx context.Context) error {
	tools, err := s.backend.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools of %s: %w", s.cfg.Name, err)
	}
	serverTools := make([]server.ServerTool, 0, len(tools))
	for _, tool := range tools {
		serverTools = append(serverTools, server.ServerTool{
			Tool:    tool,
			Handler: toolHandlerFactory(s.backend, s.subsystem, tool.Name),
		})
	}
	s.mcpServer.SetTools(serverTools...)
	logging.Debug(s.subsystem, "Tools: %v", toolNames(tools))

	prompts, err := s.backend.ListPrompts(ctx)
	if err != nil && !mcpclient.IsMethodNotFound(err) {
		logging.Warn(s.subsystem, "Listing prompts failed: %v", err)
	}
	serverPrompts := make([]server.ServerPrompt, 0, len(prompts))
	for _, p := range prompts {
		serverPrompts = append(serverPrompts, server.ServerPrompt{
			Prompt:  p,
			Handler: promptHandlerFactory(s.backend, p.Name),
		})
	}
	if len(serverPrompts) > 0 {
		s.mcpServer.AddPrompts(serverPrompts...)
	}

	resources, err := s.backend.ListResources(ctx)
	if err != nil && !mcpclient.IsMethodNotFound(err) {
		logging.Warn(s.subsystem, "Listing resources failed: %v", err)
	}
	serverResources := make([]server.ServerResource, 0, len(resources))
	for _, r := range resources {
		serverResources = append(serverResources, server.ServerResource{
			Resource: r,
			Handler:  resourceHandlerFactory(s.backend, r.URI),
		})
	}
	if len(serverResources) > 0 {
		s.mcpServer.AddResources(serverResources...)
	}

	logging.Info(s.subsystem, "Mirrored %d tools, %d prompts, %d resources",
		len(serverTools), len(serverPrompts), len(serverResources))
	return nil
}

// Listen binds the endpoint address. It is separate from Serve so bind errors surface
// before the wrapper reports itself as running.
func (s *Server) Listen() (net.Addr, error) {
	addr := ListenAddr(s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Run connects, listens and serves until ctx is done or the backend goes away.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.closeBackend()

	addr, err := s.Listen()
	if err != nil {
		return err
	}
	logging.Info(s.subsystem, "Serving %s on http://%s%s", s.cfg.Transport.InType(), addr, EndpointPath)

	errCh := make(chan error, 2)
	go func() {
		s.mu.Lock()
		srv, ln := s.http, s.listener
		s.mu.Unlock()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve: %w", err)
		}
	}()
	if s.cfg.HealthInterval > 0 {
		go s.watchBackend(ctx, errCh)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info(s.subsystem, "Shutting down")
	case runErr = <-errCh:
		logging.Error(s.subsystem, runErr, "Stopping proxy")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Debug(s.subsystem, "HTTP shutdown: %v", err)
	}
	return runErr
}

// watchBackend pings the backend. A local backend that stops answering ends Run.
func (s *Server) watchBackend(ctx context.Context, errCh chan<- error) {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthInterval)
			err := s.backend.Ping(pingCtx)
			cancel()
			if err == nil || ctx.Err() != nil {
				continue
			}
			if s.cfg.Transport.Kind == api.TransportLocal {
				errCh <- fmt.Errorf("backend stopped responding: %w", err)
				return
			}
			logging.Warn(s.subsystem, "Remote backend ping failed: %v", err)
		}
	}
}

func (s *Server) closeBackend() {
	if err := s.backend.Close(); err != nil {
		logging.Debug(s.subsystem, "Closing backend: %v", err)
	}
}

// ListenAddr turns a configured bind host into a listen address. A scheme prefix is
// stripped so hosts written as URLs still bind.
func ListenAddr(host string, port int) string {
	h := strings.TrimSpace(host)
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	h = strings.TrimRight(h, "/")
	if h == "" {
		h = "127.0.0.1"
	}
	return net.JoinHostPort(h, strconv.Itoa(port))
}

// Run builds the backend client for cfg.Transport and runs a proxy until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	backend, err := mcpclient.New(ctx, cfg.Transport, mcpclient.Options{Stderr: cfg.Stderr})
	if err != nil {
		return err
	}
	return New(cfg, backend).Run(ctx)
}

func toolNames(tools []mcp.Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
