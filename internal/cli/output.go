package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/capability"
	pkgstrings "github.com/HorseSword/local-mcp-manager/pkg/strings"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as a rounded, colored table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatPlain formats output as a kubectl-style table without borders or colors
	OutputFormatPlain OutputFormat = "plain"
	// OutputFormatJSON formats output as indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML converted from JSON
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidateOutputFormat validates that the given format string is a supported output format.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatPlain, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, plain, json, yaml)", format)
	}
}

// Printer renders API data in the selected format.
type Printer struct {
	Out       io.Writer
	Format    OutputFormat
	NoHeaders bool
	Quiet     bool
}

// structured prints v as JSON or YAML and reports whether it did.
func (p *Printer) structured(v interface{}) (bool, error) {
	switch p.Format {
	case OutputFormatJSON:
		return true, p.JSON(v)
	case OutputFormatYAML:
		return true, p.YAML(v)
	}
	return false, nil
}

// JSON prints v as indented JSON.
func (p *Printer) JSON(v interface{}) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML prints v as YAML. The value goes through JSON first so json tags decide the keys.
func (p *Printer) YAML(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	_, err = p.Out.Write(out)
	return err
}

func (p *Printer) newTable(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	if p.Format == OutputFormatPlain {
		t.SetStyle(table.StyleDefault)
		t.Style().Options = table.OptionsNoBordersAndSeparators
		t.Style().Box.PaddingLeft = ""
		t.Style().Box.PaddingRight = "   "
	} else {
		t.SetStyle(table.StyleRounded)
		t.Style().Color.Header = text.Colors{text.FgHiCyan, text.Bold}
	}
	if !p.NoHeaders {
		row := make(table.Row, len(headers))
		for i, h := range headers {
			row[i] = h
		}
		t.AppendHeader(row)
	}
	return t
}

func (p *Printer) color(c text.Color, s string) string {
	if p.Format == OutputFormatPlain {
		return s
	}
	return c.Sprint(s)
}

func (p *Printer) status(s api.ServiceStatus) string {
	switch s {
	case api.StatusOn:
		return p.color(text.FgGreen, string(s))
	case api.StatusLoading:
		return p.color(text.FgYellow, string(s))
	case api.StatusError:
		return p.color(text.FgRed, string(s))
	case "":
		return "-"
	default:
		return p.color(text.FgHiBlack, string(s))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string) string {
	return pkgstrings.OneLine(s, pkgstrings.CellWidth)
}

// Services prints the service table.
func (p *Printer) Services(services []api.ServiceInfo) error {
	if ok, err := p.structured(services); ok {
		return err
	}
	if len(services) == 0 {
		Fprintln(p.Out, p.Quiet, p.color(text.FgYellow, "No services configured"))
		return nil
	}

	t := p.newTable("NAME", "IN", "OUT", "ENDPOINT", "ENABLED", "ALIVE", "STATUS", "PID", "TOOLS")
	for _, s := range services {
		pid := "-"
		if s.PID > 0 {
			pid = strconv.Itoa(s.PID)
		}
		t.AppendRow(table.Row{
			s.Name, s.InType, s.OutType, s.Endpoint,
			yesNo(s.Enabled), yesNo(s.Alive), p.status(s.Status), pid, s.Tools,
		})
	}
	t.Render()

	if !p.Quiet && p.Format == OutputFormatTable {
		alive := 0
		for _, s := range services {
			if s.Alive {
				alive++
			}
		}
		fmt.Fprintf(p.Out, "%s %d/%d running\n", text.FgHiBlue.Sprint("Total:"), alive, len(services))
	}
	return nil
}

// Capabilities prints the tools, prompts and resources of one service.
func (p *Printer) Capabilities(entry capability.Entry) error {
	if ok, err := p.structured(entry); ok {
		return err
	}
	if entry.Capabilities == nil {
		Fprintln(p.Out, p.Quiet, p.color(text.FgYellow, fmt.Sprintf("%s has no capabilities (status %s)", entry.Name, dash(string(entry.Status)))))
		return nil
	}

	t := p.newTable("KIND", "NAME", "DESCRIPTION")
	add := func(kind string, items []api.Capability) {
		for _, c := range items {
			name := c.Name
			switch {
			case c.IsRaw():
				name = truncate(c.Raw)
			case c.URI != "":
				name = c.URI
			}
			t.AppendRow(table.Row{kind, dash(name), dash(truncate(c.Description))})
		}
	}
	add("tool", entry.Capabilities.Tools)
	add("prompt", entry.Capabilities.Prompts)
	add("resource", entry.Capabilities.Resources)

	if entry.Capabilities.Count() == 0 {
		Fprintln(p.Out, p.Quiet, p.color(text.FgYellow, entry.Name+" advertises no capabilities"))
		return nil
	}
	t.Render()
	return nil
}

// Bulk prints the outcome of a bulk start or stop.
func (p *Printer) Bulk(verb string, res api.BulkResult) error {
	if ok, err := p.structured(res); ok {
		return err
	}
	for _, name := range res.Succeeded {
		Fprintln(p.Out, p.Quiet, p.color(text.FgGreen, fmt.Sprintf("✓ %s %s", verb, name)))
	}
	failed := make([]string, 0, len(res.Failed))
	for name := range res.Failed {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	for _, name := range failed {
		fmt.Fprintln(p.Out, p.color(text.FgRed, fmt.Sprintf("✗ %s: %s", name, res.Failed[name])))
	}
	return nil
}

// JSONOrYAML prints v as YAML for the yaml format and as JSON otherwise.
func (p *Printer) JSONOrYAML(v interface{}) error {
	if p.Format == OutputFormatYAML {
		return p.YAML(v)
	}
	return p.JSON(v)
}

// Result prints a tool result. Table formats print it as indented JSON.
func (p *Printer) Result(raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err := fmt.Fprintln(p.Out, string(raw))
		return err
	}
	return p.JSONOrYAML(v)
}

// ChatEvent prints one event of a chat stream.
func (p *Printer) ChatEvent(ev api.ChatEvent) {
	if p.Format == OutputFormatJSON {
		b, _ := json.Marshal(ev)
		fmt.Fprintln(p.Out, string(b))
		return
	}
	switch ev.Type {
	case api.ChatEventToolCall:
		if p.Quiet {
			return
		}
		fmt.Fprintf(p.Out, "%s %s %s\n", p.color(text.FgHiBlack, fmt.Sprintf("[round %d]", ev.Round)),
			p.color(text.FgCyan, "→ "+ev.Tool), string(ev.Arguments))
		if ev.Error != "" {
			fmt.Fprintln(p.Out, p.color(text.FgRed, "  ✗ "+ev.Error))
		} else if ev.Result != nil {
			fmt.Fprintln(p.Out, p.color(text.FgHiBlack, "  ← "+truncate(ev.Result.String())))
		}
	case api.ChatEventResponse:
		fmt.Fprintln(p.Out, ev.Content)
	case api.ChatEventError:
		fmt.Fprintln(p.Out, p.color(text.FgRed, "Error: "+ev.Error))
	}
}
