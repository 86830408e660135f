package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	yamlv3 "gopkg.in/yaml.v3"
	"sigs.k8s.io/yaml"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/template"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const (
	// DefaultServiceFile is the service configuration file name.
	DefaultServiceFile = "mcp_conf.json"
	// ExampleServiceFile is read when DefaultServiceFile does not exist yet.
	ExampleServiceFile = "mcp_conf.example.json"
)

// ResolveServicePath returns path when it exists, otherwise the example file
// in the same directory. Neither existing is a NotFoundError for path.
func ResolveServicePath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	example := filepath.Join(filepath.Dir(path), ExampleServiceFile)
	if _, err := os.Stat(example); err == nil {
		logging.Info("Config", "No %s found, using %s", path, example)
		return example, nil
	}
	return "", api.NewConfigNotFoundError(path)
}

// LoadServices reads, validates and renders the service entries of the file at path.
func LoadServices(path string) ([]ServiceEntry, error) {
	resolved, err := ResolveServicePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resolved, err)
	}

	entries, err := ParseServices(data)
	if err != nil {
		return nil, fmt.Errorf("error loading config from %s: %w", resolved, err)
	}

	logging.Info("Config", "Loaded %d services from %s", len(entries), resolved)
	return entries, nil
}

// ParseServices decodes a JSON or YAML service document. Entries keep the order of
// mcpServers in the document.
func ParseServices(data []byte) ([]ServiceEntry, error) {
	file, err := decodeFile(data)
	if err != nil {
		return nil, err
	}

	engine := template.New()
	ids := documentOrder(data, file.MCPServers)
	entries := make([]ServiceEntry, 0, len(ids))
	for _, id := range ids {
		entry := file.MCPServers[id]
		entry.ID = id
		rendered, err := renderEntry(engine, entry)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", id, err)
		}
		entries = append(entries, rendered)
	}

	if err := ValidateEntries(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// documentOrder returns the ids of servers in the order mcpServers lists them. JSON is
// valid YAML, so one node walk covers both formats. Ids the walk misses are appended
// sorted.
func documentOrder(data []byte, servers map[string]ServiceEntry) []string {
	ids := make([]string, 0, len(servers))
	seen := make(map[string]bool, len(servers))

	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(data, &doc); err == nil && len(doc.Content) == 1 {
		root := doc.Content[0]
		for i := 0; root.Kind == yamlv3.MappingNode && i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value != "mcpServers" || root.Content[i+1].Kind != yamlv3.MappingNode {
				continue
			}
			list := root.Content[i+1].Content
			for j := 0; j+1 < len(list); j += 2 {
				id := list[j].Value
				if _, ok := servers[id]; ok && !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}

	var rest []string
	for id := range servers {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

func decodeFile(data []byte) (File, error) {
	var probe map[string]interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return File{}, &api.ValidationError{Field: "config", Message: "invalid document", Err: err}
	}
	if _, ok := probe["mcpServers"].(map[string]interface{}); !ok {
		return File{}, api.NewValidationError("mcpServers", "configuration must contain 'mcpServers' object")
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, &api.ValidationError{Field: "mcpServers", Message: "invalid service entry", Err: err}
	}
	return file, nil
}

// renderEntry renders env against the base context of the entry, then args and cwd
// against the base context plus the rendered env as .Env.
func renderEntry(engine *template.Engine, entry ServiceEntry) (ServiceEntry, error) {
	base := template.ServiceContext(entry.ID, entry.ServiceName(), entry.BindHost(), entry.OutPort)

	var err error
	if entry.Env, err = engine.RenderMap(entry.Env, base); err != nil {
		return entry, fmt.Errorf("env: %w", err)
	}
	env := entry.Env
	if env == nil {
		env = map[string]string{}
	}
	ctx := base.With(map[string]interface{}{"Env": env})

	if entry.Args, err = engine.RenderSlice(entry.Args, ctx); err != nil {
		return entry, fmt.Errorf("args: %w", err)
	}
	if entry.Cwd, err = engine.Render(entry.Cwd, ctx); err != nil {
		return entry, fmt.Errorf("cwd: %w", err)
	}
	return entry, nil
}
