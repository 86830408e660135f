package app

import (
	"io"

	"github.com/HorseSword/local-mcp-manager/internal/config"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
)

// Log formats accepted by --log-format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug     bool
	LogFormat string
	// Silent discards all log output.
	Silent bool
	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer

	// ConfigPath is the service file, SettingsPath the settings file.
	ConfigPath   string
	SettingsPath string

	// Host and Port override the web settings when set.
	Host string
	Port int

	NoAutostart bool
	Version     string

	// Launcher replaces the wrapper launcher, for tests.
	Launcher supervisor.Launcher

	// Settings is filled in by NewApplication from SettingsPath.
	Settings *config.Settings
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath, settingsPath string) *Config {
	if configPath == "" {
		configPath = config.DefaultServiceFile
	}
	return &Config{
		Debug:        debug,
		LogFormat:    LogFormatText,
		ConfigPath:   configPath,
		SettingsPath: settingsPath,
	}
}

// applyOverrides copies command line overrides onto the loaded settings.
func (c *Config) applyOverrides(s *config.Settings) {
	if c.Host != "" {
		s.Web.Host = c.Host
	}
	if c.Port > 0 {
		s.Web.Port = c.Port
	}
}
