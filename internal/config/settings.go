package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// DefaultSettingsFile is the settings file name.
const DefaultSettingsFile = "settings.yaml"

// Settings is the manager's own configuration.
type Settings struct {
	Web         WebSettings        `yaml:"web"`
	LLM         LLMSettings        `yaml:"llm"`
	Supervisor  SupervisorSettings `yaml:"supervisor"`
	Gateway     GatewaySettings    `yaml:"gateway"`
	Reconcile   ReconcileSettings  `yaml:"reconcile"`
	Chat        ChatSettings       `yaml:"chat"`
	WatchConfig bool               `yaml:"watchConfig"`
}

// WebSettings is the bind address of the management API.
type WebSettings struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// LLMSettings points at an OpenAI compatible chat-completion endpoint.
type LLMSettings struct {
	Endpoint    string        `yaml:"endpoint,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	APIKeyEnv   string        `yaml:"apiKeyEnv,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Temperature *float64      `yaml:"temperature,omitempty"`
}

// SupervisorSettings holds process lifecycle timings.
type SupervisorSettings struct {
	StopTimeout     time.Duration `yaml:"stopTimeout,omitempty"`
	KillGrace       time.Duration `yaml:"killGrace,omitempty"`
	ReapGrace       time.Duration `yaml:"reapGrace,omitempty"`
	PollInterval    time.Duration `yaml:"pollInterval,omitempty"`
	MaxShutdownWait time.Duration `yaml:"maxShutdownWait,omitempty"`
	Workers         int           `yaml:"workers,omitempty"`
}

// GatewaySettings bounds discovery and tool invocation.
type GatewaySettings struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// ReconcileSettings controls the background status reconciler.
type ReconcileSettings struct {
	Interval time.Duration `yaml:"interval,omitempty"`
}

// ChatSettings controls the tool calling loop.
type ChatSettings struct {
	MaxRounds    int    `yaml:"maxRounds,omitempty"`
	SystemPrompt string `yaml:"systemPrompt,omitempty"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Web: WebSettings{
			Host: "127.0.0.1",
			Port: 17000,
		},
		LLM: LLMSettings{
			Endpoint:  "http://localhost:11434/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   3 * time.Minute,
		},
		Supervisor: SupervisorSettings{
			StopTimeout:     3 * time.Second,
			KillGrace:       1 * time.Second,
			ReapGrace:       3 * time.Second,
			PollInterval:    500 * time.Millisecond,
			MaxShutdownWait: 15 * time.Second,
			Workers:         4,
		},
		Gateway: GatewaySettings{
			Timeout: 30 * time.Second,
		},
		Reconcile: ReconcileSettings{
			Interval: 2 * time.Second,
		},
		Chat: ChatSettings{
			MaxRounds: 3,
		},
		WatchConfig: true,
	}
}

// LoadSettings loads settings from path on top of DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No settings found at %s, using defaults", path)
			return settings, nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("error loading settings from %s: %w", path, err)
	}
	settings.fillDefaults()

	logging.Info("Config", "Loaded settings from %s", path)
	return settings, nil
}

// fillDefaults replaces zero or negative values that an explicit empty key left behind.
func (s *Settings) fillDefaults() {
	d := DefaultSettings()
	if s.Web.Host == "" {
		s.Web.Host = d.Web.Host
	}
	if s.Web.Port <= 0 {
		s.Web.Port = d.Web.Port
	}
	if s.LLM.Endpoint == "" {
		s.LLM.Endpoint = d.LLM.Endpoint
	}
	if s.LLM.Timeout <= 0 {
		s.LLM.Timeout = d.LLM.Timeout
	}
	setDuration(&s.Supervisor.StopTimeout, d.Supervisor.StopTimeout)
	setDuration(&s.Supervisor.KillGrace, d.Supervisor.KillGrace)
	setDuration(&s.Supervisor.ReapGrace, d.Supervisor.ReapGrace)
	setDuration(&s.Supervisor.PollInterval, d.Supervisor.PollInterval)
	setDuration(&s.Supervisor.MaxShutdownWait, d.Supervisor.MaxShutdownWait)
	setDuration(&s.Gateway.Timeout, d.Gateway.Timeout)
	setDuration(&s.Reconcile.Interval, d.Reconcile.Interval)
	if s.Supervisor.Workers <= 0 {
		s.Supervisor.Workers = d.Supervisor.Workers
	}
	if s.Chat.MaxRounds <= 0 {
		s.Chat.MaxRounds = d.Chat.MaxRounds
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

// APIKey resolves the chat endpoint key from the configured environment variable.
func (l LLMSettings) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}
