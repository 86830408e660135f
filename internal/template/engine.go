package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine renders Go templates with the Sprig function set inside service
// configuration values (command arguments, environment and working directory).
//
//	"args": ["--root", "{{ env \"HOME\" }}/data", "--port", "{{ .Port }}"]
//
// Arguments and the working directory also see the rendered environment of the
// entry as .Env.
type Engine struct {
	funcs template.FuncMap

	mu    sync.Mutex
	cache map[string]*template.Template
}

// New creates a new template engine
func New() *Engine {
	return &Engine{
		funcs: sprig.TxtFuncMap(),
		cache: make(map[string]*template.Template),
	}
}

// Render renders a single string. Strings without template delimiters are returned unchanged.
func (e *Engine) Render(text string, context map[string]interface{}) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := e.parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("render %q: %w", text, err)
	}
	return buf.String(), nil
}

func (e *Engine) parse(text string) (*template.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tmpl, ok := e.cache[text]; ok {
		return tmpl, nil
	}
	tmpl, err := template.New("value").Funcs(e.funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}
	e.cache[text] = tmpl
	return tmpl, nil
}

// RenderSlice renders each element of a string slice.
func (e *Engine) RenderSlice(values []string, context map[string]interface{}) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		r, err := e.Render(v, context)
		if err != nil {
			return nil, fmt.Errorf("error at index %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// RenderMap renders each value of a string map. Keys are left untouched.
func (e *Engine) RenderMap(values map[string]string, context map[string]interface{}) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		r, err := e.Render(v, context)
		if err != nil {
			return nil, fmt.Errorf("error in key '%s': %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}
