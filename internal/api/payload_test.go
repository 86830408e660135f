package api

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	t.Run("map decodes", func(t *testing.T) {
		p := DecodePayload(map[string]any{"ok": true})
		assert.False(t, p.IsRaw())
		assert.JSONEq(t, `{"ok":true}`, string(p.JSON()))
	})

	t.Run("valid bytes kept", func(t *testing.T) {
		p := DecodePayload([]byte(`[1,2,3]`))
		assert.False(t, p.IsRaw())
		assert.Equal(t, `[1,2,3]`, p.String())
	})

	t.Run("invalid bytes become raw", func(t *testing.T) {
		p := DecodePayload([]byte("not json"))
		assert.True(t, p.IsRaw())
		assert.Equal(t, "not json", p.String())
		assert.Equal(t, `"not json"`, string(p.JSON()))
	})

	t.Run("unmarshalable value becomes raw", func(t *testing.T) {
		p := DecodePayload(math.Inf(1))
		assert.True(t, p.IsRaw())
		assert.Equal(t, "+Inf", p.String())
	})

	t.Run("channel becomes raw", func(t *testing.T) {
		p := DecodePayload(make(chan int))
		assert.True(t, p.IsRaw())
		assert.NotEmpty(t, p.String())
	})
}

func TestPayloadMarshalInsideStruct(t *testing.T) {
	decoded := Decoded(json.RawMessage(`{"a":1}`))
	raw := Raw("plain text")
	ev := ChatEvent{Type: ChatEventToolCall, Tool: "echo", Result: &decoded}

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_call","tool":"echo","result":{"a":1}}`, string(b))

	ev.Result = &raw
	b, err = json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_call","tool":"echo","result":"plain text"}`, string(b))
}

func TestPayloadZeroValue(t *testing.T) {
	var p Payload
	assert.Equal(t, "null", string(p.JSON()))
}

func TestPayloadUnmarshal(t *testing.T) {
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(`{"x":"y"}`), &p))
	assert.False(t, p.IsRaw())
	assert.JSONEq(t, `{"x":"y"}`, p.String())
}
