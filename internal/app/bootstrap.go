package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/HorseSword/local-mcp-manager/internal/config"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// Application bootstraps and runs the manager together with its HTTP API.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "mcp_conf.json", "settings.yaml")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication configures logging, loads the settings and builds every service.
// A settings file that does not exist yields the defaults; a service file that does
// not exist yields an empty service table.
func NewApplication(cfg *Config) (*Application, error) {
	initLogging(cfg)

	if cfg.Settings == nil {
		settings, err := config.LoadSettings(cfg.SettingsPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load settings from %s", cfg.SettingsPath)
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		cfg.Settings = &settings
	}
	cfg.applyOverrides(cfg.Settings)

	services, err := InitializeServices(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func initLogging(cfg *Config) {
	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		out = cfg.LogOutput
	}
	if cfg.Silent {
		out = io.Discard
	}

	if cfg.LogFormat == LogFormatJSON {
		logging.InitForJSON(level, out)
		return
	}
	logging.InitForCLI(level, out)
}

// Services returns the initialized services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or the process receives SIGINT or SIGTERM, then
// stops every service before returning.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.config, a.services)
}
