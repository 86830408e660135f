// Package app bootstraps the serve command.
//
// NewApplication initializes logging (text or JSON, see pkg/logging), loads the
// settings file, applies the command line overrides and builds the Services: the
// manager over the service file and the HTTP API in front of it.
//
// Run starts the reconciler and config watcher, starts every enabled service unless
// autostart is disabled, and serves the API. It reports READY=1 to systemd once the
// API listens and STOPPING=1 when a signal arrives. Shutdown stops the API, stops
// every service and waits for zero alive processes, bounded by the supervisor's
// maxShutdownWait.
package app
