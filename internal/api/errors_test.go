package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	t.Run("default message", func(t *testing.T) {
		err := NewNotFoundError("tool", "echo")
		assert.Equal(t, "tool echo not found", err.Error())
		assert.Equal(t, "tool", err.ResourceType)
		assert.Equal(t, "echo", err.ResourceName)
	})

	t.Run("service message", func(t *testing.T) {
		err := NewServiceNotFoundError("missing_service")
		assert.Equal(t, "Service missing_service does not exist.", err.Error())
	})

	t.Run("config message", func(t *testing.T) {
		err := NewConfigNotFoundError("/tmp/mcp_conf.json")
		assert.Contains(t, err.Error(), "/tmp/mcp_conf.json")
	})
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"direct", NewToolNotFoundError("x"), true},
		{"wrapped", fmt.Errorf("invoke: %w", NewServiceNotFoundError("x")), true},
		{"validation", NewValidationError("tool_name", "required"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsNotFound(tt.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("parameters", "must be a JSON object")
	assert.Equal(t, "parameters: must be a JSON object", err.Error())
	assert.True(t, IsValidation(fmt.Errorf("wrap: %w", err)))

	inner := errors.New("unexpected EOF")
	wrapped := &ValidationError{Field: "config", Message: "invalid JSON", Err: inner}
	assert.Equal(t, "config: invalid JSON: unexpected EOF", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)

	noField := &ValidationError{Message: "bad"}
	assert.Equal(t, "bad", noField.Error())
}
