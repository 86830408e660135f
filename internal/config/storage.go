package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// Storage reads and rewrites the service configuration file.
// Every write validates the new content and backs up the previous file first.
type Storage struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewStorage creates a Storage for the service file at path.
func NewStorage(path string) *Storage {
	return &Storage{path: path, now: time.Now}
}

// Path returns the configured service file path.
func (s *Storage) Path() string {
	return s.path
}

// LoadServices loads the parsed entries through the example fallback.
func (s *Storage) LoadServices() ([]ServiceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LoadServices(s.path)
}

// LoadRaw returns the file content as stored on disk.
func (s *Storage) LoadRaw() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := ResolveServicePath(s.path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", resolved, err)
	}
	return string(data), nil
}

// SaveRaw validates content as a complete service document and writes it as indented JSON.
func (s *Storage) SaveRaw(content string) error {
	if len(bytes.TrimSpace([]byte(content))) == 0 {
		return api.NewValidationError("config", "No configuration content provided")
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return &api.ValidationError{Field: "config", Message: "Invalid JSON format", Err: err}
	}
	if _, err := ParseServices([]byte(content)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.backup(s.path)
	if err := writeJSON(s.path, doc); err != nil {
		return err
	}
	logging.Info("Config", "Saved configuration to %s", s.path)
	return nil
}

// Template returns the skeleton document offered when adding a new service.
func Template() string {
	tmpl := map[string]interface{}{
		"mcpServers": map[string]interface{}{
			"new_service": map[string]interface{}{
				"name":        "New MCP Service",
				"description": "Description of the new service",
				"command":     "uv",
				"args":        []string{"run", "script.py"},
				"cwd":         "path/to/your/code",
				"out_port":    17001,
				"isActive":    true,
			},
		},
	}
	var buf bytes.Buffer
	_ = encodeJSON(&buf, tmpl)
	return buf.String()
}

// ServiceDocument is one raw entry located in the service file.
type ServiceDocument struct {
	ID     string          `json:"service_id"`
	Config json.RawMessage `json:"service_config"`
}

// LoadService finds the entry whose id or name equals name.
func (s *Storage) LoadService(name string) (ServiceDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := ResolveServicePath(s.path)
	if err != nil {
		return ServiceDocument{}, err
	}
	_, servers, err := readDocument(resolved)
	if err != nil {
		return ServiceDocument{}, err
	}
	id, ok := findService(servers, name)
	if !ok {
		return ServiceDocument{}, api.NewServiceNotFoundError(name)
	}
	return ServiceDocument{ID: id, Config: servers[id]}, nil
}

// SaveService replaces the entry matching name with content.
// content must carry an out_port not used by any other entry.
func (s *Storage) SaveService(name, content string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return &api.ValidationError{Field: "service_config", Message: "Invalid JSON format", Err: err}
	}
	if _, ok := fields["out_port"]; !ok {
		return api.NewValidationError("out_port", "Service configuration must contain 'out_port' field")
	}
	var entry ServiceEntry
	if err := json.Unmarshal([]byte(content), &entry); err != nil {
		return &api.ValidationError{Field: "service_config", Message: "invalid service entry", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resolved, err := ResolveServicePath(s.path)
	if err != nil {
		return err
	}
	doc, servers, err := readDocument(resolved)
	if err != nil {
		return err
	}
	id, ok := findService(servers, name)
	if !ok {
		return api.NewServiceNotFoundError(name)
	}

	for otherID, raw := range servers {
		if otherID == id {
			continue
		}
		var other ServiceEntry
		if json.Unmarshal(raw, &other) == nil && other.OutPort == entry.OutPort {
			return api.NewValidationError("out_port",
				fmt.Sprintf("Port %d is already used by service '%s'", entry.OutPort, otherID))
		}
	}

	entry.ID = id
	if err := ValidateEntry(entry); err != nil {
		return err
	}

	servers[id] = json.RawMessage(content)
	if err := s.commit(resolved, doc, servers); err != nil {
		return err
	}
	logging.Info("Config", "Saved service %s to %s", id, s.path)
	return nil
}

// DeleteService removes the entry matching name.
func (s *Storage) DeleteService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return api.NewConfigNotFoundError(s.path)
	}
	doc, servers, err := readDocument(s.path)
	if err != nil {
		return err
	}
	id, ok := findService(servers, name)
	if !ok {
		return api.NewServiceNotFoundError(name)
	}

	delete(servers, id)
	if err := s.commit(s.path, doc, servers); err != nil {
		return err
	}
	logging.Info("Config", "Deleted service %s from %s", id, s.path)
	return nil
}

// commit backs up source and writes the updated document to the main path.
func (s *Storage) commit(source string, doc map[string]json.RawMessage, servers map[string]json.RawMessage) error {
	encoded, err := json.Marshal(servers)
	if err != nil {
		return fmt.Errorf("encode mcpServers: %w", err)
	}
	doc["mcpServers"] = encoded

	s.backup(source)
	return writeJSON(s.path, doc)
}

// backup copies path to path.backup.<unix>. Failures are logged and otherwise ignored.
func (s *Storage) backup(path string) {
	src, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Config", "Skipping backup of %s: %v", path, err)
		}
		return
	}
	defer src.Close()

	target := fmt.Sprintf("%s.backup.%d", s.path, s.now().Unix())
	dst, err := os.Create(target)
	if err != nil {
		logging.Warn("Config", "Skipping backup of %s: %v", path, err)
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		logging.Warn("Config", "Backup of %s incomplete: %v", path, err)
		return
	}
	logging.Debug("Config", "Backed up %s to %s", path, target)
}

func readDocument(path string) (map[string]json.RawMessage, map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, &api.ValidationError{Field: "config", Message: "Invalid JSON format", Err: err}
	}
	servers := make(map[string]json.RawMessage)
	if raw, ok := doc["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return nil, nil, &api.ValidationError{Field: "mcpServers", Message: "must be an object", Err: err}
		}
	}
	return doc, servers, nil
}

// findService matches by entry id first, then by the name field.
func findService(servers map[string]json.RawMessage, name string) (string, bool) {
	if _, ok := servers[name]; ok {
		return name, true
	}
	for id, raw := range servers {
		var probe struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(raw, &probe) == nil && probe.Name == name {
			return id, true
		}
	}
	return "", false
}

func writeJSON(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	var buf bytes.Buffer
	if err := encodeJSON(&buf, v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func encodeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
