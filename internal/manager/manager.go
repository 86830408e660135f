package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/capability"
	"github.com/HorseSword/local-mcp-manager/internal/config"
	"github.com/HorseSword/local-mcp-manager/internal/gateway"
	"github.com/HorseSword/local-mcp-manager/internal/llm"
	"github.com/HorseSword/local-mcp-manager/internal/orchestrator"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const subsystem = "Manager"

// Config wires a Manager.
type Config struct {
	Storage  *config.Storage
	Settings config.Settings

	// Launcher overrides the wrapper launcher of the supervisor.
	Launcher supervisor.Launcher
	// Model overrides the chat client built from Settings.LLM.
	Model llm.ChatModel
	// ReadyWait overrides capability.DefaultReadyWait. Negative disables retries.
	ReadyWait time.Duration
	// Debug makes the chat client log request and response payloads.
	Debug bool
}

// Manager is the facade the HTTP server and the serve command work against.
type Manager struct {
	storage  *config.Storage
	settings config.Settings

	sup   *supervisor.Supervisor
	gw    *gateway.Gateway
	cache *capability.Cache
	orch  *orchestrator.Orchestrator

	reloadMu    sync.Mutex
	lastEntries []config.ServiceEntry

	runMu   sync.Mutex
	cancel  context.CancelFunc
	watcher *config.Watcher
}

// New loads the service file and builds every component. A missing service file
// starts the manager with no services.
func New(cfg Config) (*Manager, error) {
	if cfg.Storage == nil {
		return nil, errors.New("manager requires a config storage")
	}
	s := cfg.Settings

	entries, err := cfg.Storage.LoadServices()
	if err != nil {
		if !api.IsNotFound(err) {
			return nil, err
		}
		logging.Warn(subsystem, "%v, starting without services", err)
		entries = nil
	}

	sup, err := supervisor.New(supervisor.DescriptorsFromConfig(entries), supervisor.Options{
		StopTimeout:     s.Supervisor.StopTimeout,
		KillGrace:       s.Supervisor.KillGrace,
		ReapGrace:       s.Supervisor.ReapGrace,
		PollInterval:    s.Supervisor.PollInterval,
		MaxShutdownWait: s.Supervisor.MaxShutdownWait,
		Workers:         s.Supervisor.Workers,
		Launcher:        cfg.Launcher,
	})
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == nil {
		client := llm.NewClient(s.LLM.Endpoint, s.LLM.Model, s.LLM.APIKey(), s.LLM.Timeout)
		client.Temperature = s.LLM.Temperature
		client.Debug = cfg.Debug
		model = client
	}

	gw := gateway.New(gateway.Options{Timeout: s.Gateway.Timeout})
	return &Manager{
		storage:     cfg.Storage,
		settings:    s,
		sup:         sup,
		gw:          gw,
		cache:       capability.New(sup, gw, capability.Options{ReadyWait: cfg.ReadyWait}),
		orch:        orchestrator.New(sup, gw, model, orchestrator.Config{MaxRounds: s.Chat.MaxRounds, SystemPrompt: s.Chat.SystemPrompt}),
		lastEntries: entries,
	}, nil
}

// Run starts the reconciler and, when enabled, the config watcher. With autostart every
// enabled service is started. Background work stops with ctx or Shutdown.
func (m *Manager) Run(ctx context.Context, autostart bool) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return errors.New("manager is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.cache.StartReconciler(ctx, m.settings.Reconcile.Interval)

	if m.settings.WatchConfig {
		m.watcher = config.NewWatcher(config.WatcherConfig{
			Path: m.storage.Path(),
			OnChange: func() {
				if _, err := m.Reload(ctx); err != nil {
					logging.Error(subsystem, err, "Reload after config change failed")
				}
			},
		})
		if err := m.watcher.Start(); err != nil {
			logging.Warn(subsystem, "Config watcher not started: %v", err)
			m.watcher = nil
		}
	}

	if autostart {
		res := m.StartAll(ctx)
		logging.Info(subsystem, "Autostart: %d started, %d failed", len(res.Succeeded), len(res.Failed))
	}
	return nil
}

// Shutdown stops background work and every running service, then waits for zero alive.
func (m *Manager) Shutdown(ctx context.Context) (api.BulkResult, int, error) {
	m.runMu.Lock()
	if m.watcher != nil {
		_ = m.watcher.Stop()
		m.watcher = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.runMu.Unlock()

	res, remaining, err := m.StopAll(ctx)
	m.cache.Wait()
	return res, remaining, err
}

// Services refreshes liveness and returns every service.
func (m *Manager) Services() []api.ServiceInfo {
	m.sup.RefreshAll()
	views := m.sup.List()
	out := make([]api.ServiceInfo, 0, len(views))
	for _, v := range views {
		out = append(out, v.Info())
	}
	return out
}

// Service returns one service.
func (m *Manager) Service(name string) (api.ServiceInfo, error) {
	v, err := m.sup.Get(name)
	if err != nil {
		return api.ServiceInfo{}, err
	}
	return v.Info(), nil
}

// Start starts one service.
func (m *Manager) Start(ctx context.Context, name string) error {
	return m.sup.Start(ctx, name)
}

// Stop stops one service.
func (m *Manager) Stop(ctx context.Context, name string) (supervisor.StopReport, error) {
	return m.sup.Stop(ctx, name)
}

// Toggle flips whether name takes part in StartAll.
func (m *Manager) Toggle(name string) (bool, error) {
	return m.sup.Toggle(name)
}

// StartAll starts every enabled service.
func (m *Manager) StartAll(ctx context.Context) api.BulkResult {
	res := m.sup.StartAllEnabled(ctx)
	m.sup.RefreshAll()
	return res
}

// StopAll stops every running service and waits, bounded, for all of them to exit.
func (m *Manager) StopAll(ctx context.Context) (api.BulkResult, int, error) {
	res := m.sup.StopAllRunning(ctx)
	remaining, err := m.sup.WaitForZeroAlive(ctx, 0, 0)
	m.sup.RefreshAll()
	return res, remaining, err
}

// RefreshAll re-derives liveness and reconciles statuses.
func (m *Manager) RefreshAll(ctx context.Context) {
	m.sup.RefreshAll()
	m.cache.CheckStatus(ctx)
}

// CountAlive returns the number of running services.
func (m *Manager) CountAlive() int {
	return m.sup.CountAlive()
}

// GetCapabilities returns the capability bundle of name, discovering it when needed.
func (m *Manager) GetCapabilities(ctx context.Context, name string, force bool) (capability.Entry, error) {
	return m.cache.Get(ctx, name, force)
}

// GetAllCapabilities fans out over every service.
func (m *Manager) GetAllCapabilities(ctx context.Context) map[string]capability.Result {
	return m.cache.GetAll(ctx)
}

// Invoke calls tool on service with params, a JSON object.
func (m *Manager) Invoke(ctx context.Context, service, tool string, params json.RawMessage) (api.Payload, error) {
	v, err := m.sup.Get(service)
	if err != nil {
		return api.Payload{}, err
	}
	if !v.Alive {
		return api.Payload{}, fmt.Errorf("%s: %w", service, api.ErrServiceNotRunning)
	}
	return m.gw.InvokeTool(ctx, capability.TargetOf(v), tool, params)
}

// Chat runs the tool calling loop and returns the trace.
func (m *Manager) Chat(ctx context.Context, service string, messages []api.ChatMessage) (api.ChatTrace, error) {
	return m.orch.Run(ctx, service, messages)
}

// ChatStream runs the tool calling loop and emits every event.
func (m *Manager) ChatStream(ctx context.Context, service string, messages []api.ChatMessage, emit func(api.ChatEvent)) {
	m.orch.Stream(ctx, service, messages, emit)
}

// Reload re-reads the service file. When the entries changed, every service is stopped
// and the table replaced. It reports whether the table was replaced.
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	entries, err := m.storage.LoadServices()
	if err != nil {
		return false, err
	}
	if reflect.DeepEqual(entries, m.lastEntries) {
		logging.Debug(subsystem, "Service file unchanged, nothing to reload")
		return false, nil
	}

	if err := m.sup.Reload(ctx, supervisor.DescriptorsFromConfig(entries)); err != nil {
		return false, err
	}
	m.lastEntries = entries
	return true, nil
}

// RawConfig returns the service file content.
func (m *Manager) RawConfig() (string, error) {
	return m.storage.LoadRaw()
}

// SaveRawConfig validates and stores a complete service file, then reloads.
func (m *Manager) SaveRawConfig(ctx context.Context, content string) (bool, error) {
	if err := m.storage.SaveRaw(content); err != nil {
		return false, err
	}
	return m.Reload(ctx)
}

// ConfigTemplate returns the skeleton for a new service.
func (m *Manager) ConfigTemplate() string {
	return config.Template()
}

// ServiceConfig returns the stored entry of one service.
func (m *Manager) ServiceConfig(name string) (config.ServiceDocument, error) {
	return m.storage.LoadService(name)
}

// SaveServiceConfig stores one service entry. The running table changes on the next reload.
func (m *Manager) SaveServiceConfig(name, content string) error {
	return m.storage.SaveService(name, content)
}

// DeleteServiceConfig removes one service entry. The running table changes on the next reload.
func (m *Manager) DeleteServiceConfig(name string) error {
	return m.storage.DeleteService(name)
}

// Settings returns the effective settings.
func (m *Manager) Settings() config.Settings {
	return m.settings
}
