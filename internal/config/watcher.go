package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

// DefaultDebounceInterval is the time to wait before triggering a reload
// after the last file change is detected.
const DefaultDebounceInterval = 500 * time.Millisecond

// DefaultPollInterval is used when fsnotify cannot watch the directory.
const DefaultPollInterval = 2 * time.Second

// WatcherConfig holds configuration for the service file watcher.
type WatcherConfig struct {
	// Path is the service file to watch.
	Path string

	// PollInterval is the fallback polling interval when fsnotify is not available.
	PollInterval time.Duration

	// Debounce collapses bursts of events (editors often write twice).
	Debounce time.Duration

	// OnChange is called when the file changes.
	OnChange func()
}

// Watcher monitors the service file and calls OnChange after it settles.
// It watches the parent directory so atomic rename-over saves are seen,
// and falls back to polling the modification time.
type Watcher struct {
	mu sync.Mutex

	config WatcherConfig

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	lastModTime time.Time

	debounceTimer *time.Timer
	debounceMu    sync.Mutex
}

// NewWatcher creates a new watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounceInterval
	}
	return &Watcher{config: config}
}

// Start begins watching. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	w.stopCh = make(chan struct{})
	w.running = true

	dir := filepath.Dir(w.config.Path)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("Config", "fsnotify not available, falling back to polling: %v", err)
		go w.pollForChanges(w.stopCh)
		return nil
	}

	if err := fsw.Add(dir); err != nil {
		logging.Warn("Config", "Failed to watch directory %s, falling back to polling: %v", dir, err)
		fsw.Close()
		go w.pollForChanges(w.stopCh)
		return nil
	}
	w.fsWatcher = fsw

	go w.processEvents(w.stopCh, fsw.Events, fsw.Errors)

	logging.Info("Config", "Watching %s for changes", w.config.Path)
	return nil
}

func (w *Watcher) processEvents(stopCh <-chan struct{}, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("Config", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.config.Path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("Config", "Service file changed: %s (%s)", event.Name, event.Op)
	w.triggerReloadDebounced()
}

func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

func (w *Watcher) pollForChanges(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.checkForChanges()

	for {
		select {
		case <-stopCh:
			return

		case <-ticker.C:
			if w.checkForChanges() {
				logging.Debug("Config", "Service file change detected via polling")
				w.triggerReloadDebounced()
			}
		}
	}
}

// checkForChanges reports whether the modification time moved forward since the last check.
func (w *Watcher) checkForChanges() bool {
	info, err := os.Stat(w.config.Path)
	if err != nil {
		return false
	}

	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	changed := !w.lastModTime.IsZero() && info.ModTime().After(w.lastModTime)
	w.lastModTime = info.ModTime()
	return changed
}

// Stop stops the watcher and cancels a pending callback.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("Config", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}

	logging.Info("Config", "Stopped watching %s", w.config.Path)
	return nil
}

// IsRunning returns whether the watcher is currently active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
