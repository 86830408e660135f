package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildToolParams(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		pairs    []string
		expected string
	}{
		{name: "nothing", expected: ""},
		{name: "json object", raw: `{"path":"/tmp"}`, expected: `{"path":"/tmp"}`},
		{name: "pairs decode json values", pairs: []string{"n=3", "flag=true", "list=[1,2]"}, expected: `{"n":3,"flag":true,"list":[1,2]}`},
		{name: "pairs fall back to strings", pairs: []string{"message=hello world", "empty="}, expected: `{"message":"hello world","empty":""}`},
		{name: "pairs override object keys", raw: `{"a":1,"b":2}`, pairs: []string{"a=x"}, expected: `{"a":"x","b":2}`},
		{name: "value keeps later equals signs", pairs: []string{"q=a=b"}, expected: `{"q":"a=b"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildToolParams(tt.raw, tt.pairs)
			require.NoError(t, err)
			if tt.expected == "" {
				assert.Nil(t, got)
				return
			}
			assert.JSONEq(t, tt.expected, string(got))
		})
	}
}

func TestBuildToolParamsErrors(t *testing.T) {
	_, err := buildToolParams(`[1,2]`, nil)
	assert.ErrorContains(t, err, "JSON object")

	_, err = buildToolParams("", []string{"novalue"})
	assert.ErrorContains(t, err, "key=value")

	_, err = buildToolParams("", []string{"=x"})
	assert.Error(t, err)
}
