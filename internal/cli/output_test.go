package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/capability"
)

func TestValidateOutputFormat(t *testing.T) {
	for _, f := range []string{"table", "plain", "json", "yaml"} {
		assert.NoError(t, ValidateOutputFormat(f), f)
	}
	err := ValidateOutputFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}

var testServices = []api.ServiceInfo{
	{Name: "echo", InType: "stdio", OutType: "http", Endpoint: "http://127.0.0.1:18001/mcp", Enabled: true, Alive: true, Status: api.StatusOn, PID: 4242, Tools: 3},
	{Name: "idle", InType: "http", OutType: "http", Endpoint: "http://127.0.0.1:18002/mcp", Status: api.StatusOff},
}

func TestPrinterServicesPlain(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatPlain}
	require.NoError(t, p.Services(testServices))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "echo")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "OFF")
	assert.NotContains(t, out, "\x1b[", "plain output is uncolored")
	assert.NotContains(t, out, "Total:")
}

func TestPrinterServicesNoHeaders(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatPlain, NoHeaders: true}
	require.NoError(t, p.Services(testServices))
	assert.NotContains(t, buf.String(), "NAME")
}

func TestPrinterServicesTableSummary(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatTable}
	require.NoError(t, p.Services(testServices))
	assert.Contains(t, buf.String(), "1/2 running")
}

func TestPrinterServicesEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatPlain}
	require.NoError(t, p.Services(nil))
	assert.Contains(t, buf.String(), "No services configured")

	buf.Reset()
	p.Quiet = true
	require.NoError(t, p.Services(nil))
	assert.Empty(t, buf.String())
}

func TestPrinterStructured(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatJSON}
	require.NoError(t, p.Services(testServices))

	var decoded []api.ServiceInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, testServices, decoded)

	buf.Reset()
	p.Format = OutputFormatYAML
	require.NoError(t, p.Services(testServices))
	assert.Contains(t, buf.String(), "is_enabled: true")
	assert.Contains(t, buf.String(), "name: echo")
}

func TestPrinterCapabilities(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatPlain}
	entry := capability.Entry{
		Name:   "echo",
		Status: api.StatusOn,
		Capabilities: &api.CapabilityBundle{
			Tools:     []api.Capability{{Name: "echo", Description: "Echo\nthe   message"}},
			Resources: []api.Capability{{URI: "file:///tmp/a", Name: "a"}},
			Prompts:   []api.Capability{{Raw: "weird prompt"}},
		},
	}
	require.NoError(t, p.Capabilities(entry))

	out := buf.String()
	assert.Contains(t, out, "Echo the message")
	assert.Contains(t, out, "file:///tmp/a")
	assert.Contains(t, out, "weird prompt")

	buf.Reset()
	require.NoError(t, p.Capabilities(capability.Entry{Name: "idle", Status: api.StatusOff}))
	assert.Contains(t, buf.String(), "idle has no capabilities (status OFF)")
}

func TestPrinterBulk(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatPlain, Quiet: true}
	res := api.BulkResult{Succeeded: []string{"a"}}
	res.Add("c", errors.New("port in use"))
	res.Add("b", errors.New("spawn failed"))
	require.NoError(t, p.Bulk("started", res))

	out := buf.String()
	assert.NotContains(t, out, "started a", "successes are suppressed when quiet")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("b: spawn failed")), bytes.Index(buf.Bytes(), []byte("c: port in use")))
}

func TestPrinterResult(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatTable}
	require.NoError(t, p.Result(json.RawMessage(`{"a":1}`)))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, p.Result(json.RawMessage(`not json`)))
	assert.Equal(t, "not json\n", buf.String())
}

func TestPrinterChatEvent(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Out: &buf, Format: OutputFormatPlain}
	res := api.Raw("echoed")
	p.ChatEvent(api.ChatEvent{Type: api.ChatEventToolCall, Round: 1, Tool: "echo", Arguments: json.RawMessage(`{}`), Result: &res})
	p.ChatEvent(api.ChatEvent{Type: api.ChatEventResponse, Content: "done talking"})
	p.ChatEvent(api.ChatEvent{Type: api.ChatEventDone})

	out := buf.String()
	assert.Contains(t, out, "[round 1]")
	assert.Contains(t, out, "→ echo")
	assert.Contains(t, out, "echoed")
	assert.Contains(t, out, "done talking\n")

	buf.Reset()
	p.Quiet = true
	p.ChatEvent(api.ChatEvent{Type: api.ChatEventToolCall, Tool: "echo"})
	assert.Empty(t, buf.String())
}
