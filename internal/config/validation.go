package config

import (
	"fmt"

	"github.com/HorseSword/local-mcp-manager/internal/api"
)

// ValidateEntries checks every entry and the uniqueness of names and ports across entries.
func ValidateEntries(entries []ServiceEntry) error {
	names := make(map[string]string, len(entries))
	ports := make(map[int]string, len(entries))

	for _, e := range entries {
		if err := ValidateEntry(e); err != nil {
			return fmt.Errorf("service %s: %w", e.ID, err)
		}

		name := e.ServiceName()
		if other, ok := names[name]; ok {
			return api.NewValidationError("name",
				fmt.Sprintf("duplicate service name %q used by %s and %s", name, other, e.ID))
		}
		names[name] = e.ID

		if other, ok := ports[e.OutPort]; ok {
			return api.NewValidationError("out_port",
				fmt.Sprintf("Duplicate port number: %d. Each service must have a unique out_port (%s, %s).", e.OutPort, other, e.ID))
		}
		ports[e.OutPort] = e.ID
	}
	return nil
}

// ValidateEntry checks a single entry in isolation.
func ValidateEntry(e ServiceEntry) error {
	if e.OutPort <= 0 || e.OutPort > 65535 {
		return api.NewValidationError("out_port", fmt.Sprintf("must be between 1 and 65535, got %d", e.OutPort))
	}
	if e.Command == "" && e.URL == "" {
		return api.NewValidationError("command", "either command or url is required")
	}
	return e.Transport().Validate()
}
