package app

import (
	"fmt"

	"github.com/HorseSword/local-mcp-manager/internal/config"
	"github.com/HorseSword/local-mcp-manager/internal/manager"
	"github.com/HorseSword/local-mcp-manager/internal/server"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// Services holds all initialized services used by the application.
type Services struct {
	// Manager owns the service table, the capability cache and the chat loop.
	Manager *manager.Manager

	// Server is the management HTTP API in front of Manager.
	Server *server.Server
}

// InitializeServices creates the manager and the HTTP API. Children are launched by
// re-executing this binary with the wrap subcommand; --debug is passed on to them.
func InitializeServices(cfg *Config) (*Services, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings are not loaded")
	}

	launcher := cfg.Launcher
	if launcher == nil {
		wrapper := supervisor.WrapperLauncher{}
		if cfg.Debug {
			wrapper.ExtraArgs = append(wrapper.ExtraArgs, "--debug")
		}
		if cfg.LogFormat == LogFormatJSON {
			wrapper.ExtraArgs = append(wrapper.ExtraArgs, "--log-format", LogFormatJSON)
		}
		launcher = wrapper
	}

	mgr, err := manager.New(manager.Config{
		Storage:  config.NewStorage(cfg.ConfigPath),
		Settings: *cfg.Settings,
		Launcher: launcher,
		Debug:    cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}

	srv := server.New(mgr, server.Options{
		Host:    cfg.Settings.Web.Host,
		Port:    cfg.Settings.Web.Port,
		Version: cfg.Version,
		Debug:   cfg.Debug,
	})

	logging.Debug("Services", "Initialized manager for %s, API on %s", cfg.ConfigPath, srv.Addr())
	return &Services{Manager: mgr, Server: srv}, nil
}
