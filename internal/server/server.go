package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/capability"
	"github.com/HorseSword/local-mcp-manager/internal/config"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const subsystem = "Web"

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second

	// maxBodyBytes bounds request bodies. Config documents are the largest.
	maxBodyBytes = 4 << 20
)

// Backend is the set of manager operations the API serves. *manager.Manager implements it.
type Backend interface {
	Services() []api.ServiceInfo
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) (supervisor.StopReport, error)
	Toggle(name string) (bool, error)
	StartAll(ctx context.Context) api.BulkResult
	StopAll(ctx context.Context) (api.BulkResult, int, error)
	RefreshAll(ctx context.Context)
	CountAlive() int

	GetCapabilities(ctx context.Context, name string, force bool) (capability.Entry, error)
	GetAllCapabilities(ctx context.Context) map[string]capability.Result
	Invoke(ctx context.Context, service, tool string, params json.RawMessage) (api.Payload, error)
	Chat(ctx context.Context, service string, messages []api.ChatMessage) (api.ChatTrace, error)
	ChatStream(ctx context.Context, service string, messages []api.ChatMessage, emit func(api.ChatEvent))

	Reload(ctx context.Context) (bool, error)
	RawConfig() (string, error)
	SaveRawConfig(ctx context.Context, content string) (bool, error)
	ConfigTemplate() string
	ServiceConfig(name string) (config.ServiceDocument, error)
	SaveServiceConfig(name, content string) error
	DeleteServiceConfig(name string) error
}

// Options configure a Server.
type Options struct {
	Host    string
	Port    int
	Version string
	// Debug logs every request at info level instead of debug.
	Debug bool
}

// Server is the management HTTP API.
type Server struct {
	backend Backend
	opts    Options
	handler http.Handler

	httpServer *http.Server
}

// New creates a Server for backend.
func New(backend Backend, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{backend: backend, opts: opts}
	s.handler = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
}

// Start listens on the configured address and serves in the background. Bind errors
// are returned directly.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(subsystem, err, "HTTP server stopped")
		}
	}()
	logging.Info(subsystem, "Management API listening on http://%s", ln.Addr())
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusOK, api.OK("OK", map[string]int{"alive": s.backend.CountAlive()}))
	})
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusOK, api.OK("", map[string]string{"version": s.opts.Version}))
	})

	r.Route("/api/services", func(r chi.Router) {
		r.Get("/", s.listServices)
		r.Post("/start-all", s.startAll)
		r.Post("/stop-all", s.stopAll)
		r.Post("/refresh", s.refresh)
		r.Get("/capabilities", s.allCapabilities)

		r.Route("/{name}", func(r chi.Router) {
			r.Post("/start", s.startService)
			r.Post("/stop", s.stopService)
			r.Post("/toggle", s.toggleService)
			r.Get("/info", s.serviceInfo)
			r.Post("/call_tool", s.callTool)
			r.Post("/chat", s.chat)
			r.Post("/chat/stream", s.chatStream)

			r.Get("/config", s.serviceConfig)
			r.Post("/config", s.saveServiceConfig)
			r.Delete("/config", s.deleteServiceConfig)
		})
	})

	r.Route("/api/config", func(r chi.Router) {
		r.Get("/", s.rawConfig)
		r.Post("/", s.saveRawConfig)
		r.Get("/template", s.configTemplate)
		r.Post("/reload", s.reload)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusNotFound, api.Result{Error: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)})
	})
	return r
}
