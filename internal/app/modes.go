package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// shutdownGrace is added on top of the supervisor's maximum shutdown wait.
const shutdownGrace = 5 * time.Second

// notify sends a state to systemd. Outside of systemd it is a no-op.
var notify = func(state string) {
	if sent, err := daemon.SdNotify(false, state); err != nil {
		logging.Debug("Serve", "sd_notify %s failed: %v", state, err)
	} else if sent {
		logging.Debug("Serve", "sd_notify %s", state)
	}
}

// runServer starts the manager and the HTTP API, then blocks until ctx is done or
// SIGINT/SIGTERM arrives. Shutdown stops the API first so no new work comes in, then
// stops every service and waits, bounded, for all of them to exit.
func runServer(ctx context.Context, cfg *Config, services *Services) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := services.Manager.Run(ctx, !cfg.NoAutostart); err != nil {
		return err
	}
	if err := services.Server.Start(); err != nil {
		_, _, _ = services.Manager.Shutdown(context.Background())
		return err
	}

	notify(daemon.SdNotifyReady)
	logging.Info("Serve", "Manager ready with %d running services. Press Ctrl+C to stop all services and exit.",
		services.Manager.CountAlive())

	<-ctx.Done()
	notify(daemon.SdNotifyStopping)
	logging.Info("Serve", "--- Shutting down services ---")

	wait := cfg.Settings.Supervisor.MaxShutdownWait + shutdownGrace
	shutdownCtx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	if err := services.Server.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Serve", "HTTP server shutdown: %v", err)
	}
	res, remaining, err := services.Manager.Shutdown(shutdownCtx)
	logging.Info("Serve", "Stopped %d services", len(res.Succeeded))
	if err != nil {
		logging.Error("Serve", err, "%d services did not exit", remaining)
		return err
	}
	return nil
}
