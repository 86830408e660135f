package supervisor

import (
	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/config"
)

// Descriptor is the static part of a supervised service.
type Descriptor struct {
	Name        string
	Description string
	Transport   api.Transport
	BindHost    string
	BindPort    int
	Enabled     bool
}

// Endpoint returns the URL the wrapper re-exposes the service on.
func (d Descriptor) Endpoint() string {
	return api.Endpoint(d.BindHost, d.BindPort)
}

// DescriptorsFromConfig resolves validated configuration entries into descriptors,
// keeping the order of entries.
func DescriptorsFromConfig(entries []config.ServiceEntry) []Descriptor {
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, Descriptor{
			Name:        e.ServiceName(),
			Description: e.Description,
			Transport:   e.Transport(),
			BindHost:    e.BindHost(),
			BindPort:    e.OutPort,
			Enabled:     e.Enabled(),
		})
	}
	return out
}

// DescriptorView is a point-in-time snapshot of one service.
type DescriptorView struct {
	Descriptor

	Alive        bool
	PID          int
	Status       api.ServiceStatus
	Capabilities *api.CapabilityBundle
	LastError    string

	// Epoch identifies the process generation. It changes on every successful spawn and
	// is never reused, not even after a reload.
	Epoch uint64
}

// Info converts the view into the externally visible shape.
func (v DescriptorView) Info() api.ServiceInfo {
	info := api.ServiceInfo{
		Name:      v.Name,
		InType:    v.Transport.InType(),
		OutType:   api.OutType,
		Host:      v.BindHost,
		Port:      v.BindPort,
		Endpoint:  v.Endpoint(),
		Enabled:   v.Enabled,
		Alive:     v.Alive,
		Status:    v.Status,
		LastError: v.LastError,
	}
	if v.Alive {
		info.PID = v.PID
	}
	if v.Capabilities != nil {
		info.Tools = len(v.Capabilities.Tools)
	}
	return info
}
