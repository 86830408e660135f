package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// CallToolRequest is the body of POST /api/services/{name}/call_tool.
type CallToolRequest struct {
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ChatRequest is the body of the chat endpoints.
type ChatRequest struct {
	Messages []api.ChatMessage `json:"messages"`
}

// ContentResponse carries a configuration document as text.
type ContentResponse struct {
	Content string `json:"content"`
}

// StopAllResponse is the data of POST /api/services/stop-all.
type StopAllResponse struct {
	Result    api.BulkResult `json:"result"`
	Remaining int            `json:"remaining"`
}

// ToggleResponse is the data of POST /api/services/{name}/toggle.
type ToggleResponse struct {
	Name    string `json:"name"`
	Enabled bool   `json:"is_enabled"`
}

// ReloadResponse reports whether a reload replaced the service table.
type ReloadResponse struct {
	Reloaded bool `json:"reloaded"`
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &api.ValidationError{Field: "body", Message: "failed to read request body", Err: err}
	}
	return body, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return api.NewValidationError("body", "No JSON data provided")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &api.ValidationError{Field: "body", Message: "invalid JSON", Err: err}
	}
	return nil
}

// requireService answers 404 and returns false when name is unknown.
func (s *Server) requireService(w http.ResponseWriter, name string) bool {
	for _, svc := range s.backend.Services() {
		if svc.Name == name {
			return true
		}
	}
	fail(w, api.NewServiceNotFoundError(name), nil)
	return false
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	ok(w, "", s.backend.Services())
}

func (s *Server) startAll(w http.ResponseWriter, r *http.Request) {
	res := s.backend.StartAll(r.Context())
	ok(w, fmt.Sprintf("Started %d services, %d failed", len(res.Succeeded), len(res.Failed)), res)
}

func (s *Server) stopAll(w http.ResponseWriter, r *http.Request) {
	res, remaining, err := s.backend.StopAll(r.Context())
	data := StopAllResponse{Result: res, Remaining: remaining}
	if err != nil {
		fail(w, err, data)
		return
	}
	ok(w, fmt.Sprintf("Stopped %d services", len(res.Succeeded)), data)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.backend.RefreshAll(r.Context())
	ok(w, "Services refreshed", s.backend.Services())
}

func (s *Server) allCapabilities(w http.ResponseWriter, r *http.Request) {
	ok(w, "", s.backend.GetAllCapabilities(r.Context()))
}

func (s *Server) startService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.backend.Start(r.Context(), name); err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, fmt.Sprintf("Service %s started", name), nil)
}

func (s *Server) stopService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	report, err := s.backend.Stop(r.Context(), name)
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, fmt.Sprintf("Service %s stopped", name), report)
}

func (s *Server) toggleService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	enabled, err := s.backend.Toggle(name)
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, "", ToggleResponse{Name: name, Enabled: enabled})
}

func (s *Server) serviceInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	force := isTrue(r.URL.Query().Get("refresh"))
	entry, err := s.backend.GetCapabilities(r.Context(), name, force)
	if err != nil {
		fail(w, err, entry)
		return
	}
	ok(w, "", entry)
}

func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req CallToolRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, err, nil)
		return
	}
	if strings.TrimSpace(req.ToolName) == "" {
		fail(w, api.NewValidationError("tool_name", "Tool name is required"), nil)
		return
	}

	payload, err := s.backend.Invoke(r.Context(), name, req.ToolName, req.Parameters)
	if err != nil {
		logging.Debug(subsystem, "Tool call %s/%s failed: %v", name, req.ToolName, err)
		fail(w, err, nil)
		return
	}
	ok(w, "", payload)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, err, nil)
		return
	}
	if !s.requireService(w, name) {
		return
	}

	trace, err := s.backend.Chat(r.Context(), name, req.Messages)
	if err != nil {
		fail(w, err, trace)
		return
	}
	if trace.Error != "" {
		writeResult(w, http.StatusOK, api.Result{Error: trace.Error, Data: trace})
		return
	}
	ok(w, "", trace)
}

func (s *Server) chatStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, err, nil)
		return
	}
	if !s.requireService(w, name) {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	s.backend.ChatStream(r.Context(), name, req.Messages, func(ev api.ChatEvent) {
		if err := enc.Encode(ev); err != nil {
			logging.Debug(subsystem, "Chat stream to client closed: %v", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	})
}

func (s *Server) serviceConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := s.backend.ServiceConfig(chi.URLParam(r, "name"))
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, "", doc)
}

func (s *Server) saveServiceConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, err := readBody(w, r)
	if err != nil {
		fail(w, err, nil)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		fail(w, api.NewValidationError("config", "No service configuration content provided"), nil)
		return
	}
	if err := s.backend.SaveServiceConfig(name, string(body)); err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, "Service configuration saved successfully", nil)
}

func (s *Server) deleteServiceConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.backend.DeleteServiceConfig(name); err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, fmt.Sprintf("Service %s deleted", name), nil)
}

func (s *Server) rawConfig(w http.ResponseWriter, r *http.Request) {
	content, err := s.backend.RawConfig()
	if err != nil {
		fail(w, err, nil)
		return
	}
	ok(w, "", ContentResponse{Content: content})
}

func (s *Server) saveRawConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, err, nil)
		return
	}
	reloaded, err := s.backend.SaveRawConfig(r.Context(), string(body))
	if err != nil {
		if !api.IsValidation(err) {
			logging.Warn(subsystem, "Saving configuration: %v", err)
		}
		fail(w, err, nil)
		return
	}
	ok(w, "Configuration saved successfully", ReloadResponse{Reloaded: reloaded})
}

func (s *Server) configTemplate(w http.ResponseWriter, r *http.Request) {
	ok(w, "", ContentResponse{Content: s.backend.ConfigTemplate()})
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	reloaded, err := s.backend.Reload(r.Context())
	if err != nil {
		fail(w, err, nil)
		return
	}
	msg := "Configuration unchanged"
	if reloaded {
		msg = "Configuration reloaded"
	}
	ok(w, msg, ReloadResponse{Reloaded: reloaded})
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
