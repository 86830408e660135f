package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const subsystem = "Supervisor"

// Default lifecycle timings.
const (
	DefaultStopTimeout     = 3 * time.Second
	DefaultKillGrace       = time.Second
	DefaultReapGrace       = 3 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultMaxShutdownWait = 15 * time.Second
	DefaultWorkers         = 4
)

// ErrShutdownDeadline is returned when services are still alive after the shutdown wait.
var ErrShutdownDeadline = errors.New("shutdown deadline exceeded")

// errRetired is returned for entries that a reload is replacing.
var errRetired = errors.New("service is being reloaded")

// Options tunes a Supervisor. Zero values take the defaults above.
type Options struct {
	StopTimeout     time.Duration
	KillGrace       time.Duration
	ReapGrace       time.Duration
	PollInterval    time.Duration
	MaxShutdownWait time.Duration
	Workers         int

	// Launcher defaults to WrapperLauncher{}.
	Launcher Launcher
}

func (o *Options) setDefaults() {
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.KillGrace <= 0 {
		o.KillGrace = DefaultKillGrace
	}
	if o.ReapGrace <= 0 {
		o.ReapGrace = DefaultReapGrace
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxShutdownWait <= 0 {
		o.MaxShutdownWait = DefaultMaxShutdownWait
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Launcher == nil {
		o.Launcher = WrapperLauncher{}
	}
}

// StopReport describes how a stop ended.
type StopReport struct {
	Name           string `json:"name"`
	PID            int    `json:"pid,omitempty"`
	AlreadyStopped bool   `json:"already_stopped,omitempty"`
	Killed         bool   `json:"killed,omitempty"`
	// Survived is set when the process was still alive after the kill grace.
	Survived bool `json:"survived,omitempty"`
}

// entry is one row of the service table.
type entry struct {
	// lifecycle serializes start and stop of this service.
	lifecycle sync.Mutex

	mu          sync.RWMutex
	desc        Descriptor
	proc        *process
	status      api.ServiceStatus
	caps        *api.CapabilityBundle
	lastErr     string
	epoch       uint64
	stoppedSeen bool
	retired     bool
}

func newEntry(d Descriptor) *entry {
	return &entry{desc: d, status: api.StatusOff}
}

func (e *entry) process() *process {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.proc
}

func (e *entry) view() DescriptorView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v := DescriptorView{
		Descriptor:   e.desc,
		Alive:        e.proc.Alive(),
		Status:       e.status,
		Capabilities: e.caps,
		LastError:    e.lastErr,
		Epoch:        e.epoch,
	}
	if e.proc != nil {
		v.PID = e.proc.pid
	}
	return v
}

// Supervisor owns the service table and every child process.
type Supervisor struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	// epochs numbers spawns across the whole table, so generations never repeat
	// when a reload rebuilds an entry.
	epochs atomic.Uint64

	reloadMu sync.Mutex
}

// New creates a supervisor for descriptors. Duplicate names are rejected.
func New(descriptors []Descriptor, opts Options) (*Supervisor, error) {
	opts.setDefaults()
	s := &Supervisor{opts: opts}
	entries, order, err := buildTable(descriptors)
	if err != nil {
		return nil, err
	}
	s.entries, s.order = entries, order
	return s, nil
}

func buildTable(descriptors []Descriptor) (map[string]*entry, []string, error) {
	entries := make(map[string]*entry, len(descriptors))
	order := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, nil, api.NewValidationError("name", "service name must not be empty")
		}
		if _, dup := entries[d.Name]; dup {
			return nil, nil, api.NewValidationError("name", fmt.Sprintf("duplicate service name %q", d.Name))
		}
		entries[d.Name] = newEntry(d)
		order = append(order, d.Name)
	}
	return entries, order, nil
}

func (s *Supervisor) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, api.NewServiceNotFoundError(name)
	}
	return e, nil
}

func (s *Supervisor) snapshot() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

// Names returns the service names in configuration order.
func (s *Supervisor) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Get returns a snapshot of one service.
func (s *Supervisor) Get(name string) (DescriptorView, error) {
	e, err := s.lookup(name)
	if err != nil {
		return DescriptorView{}, err
	}
	return e.view(), nil
}

// List returns snapshots of every service in configuration order.
func (s *Supervisor) List() []DescriptorView {
	entries := s.snapshot()
	out := make([]DescriptorView, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.view())
	}
	return out
}

// Start spawns the wrapper for name. It is a no-op when the service is alive.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.RLock()
	retired, prev, desc := e.retired, e.proc, e.desc
	e.mu.RUnlock()

	if retired {
		return errRetired
	}
	if prev.Alive() {
		return nil
	}
	if prev != nil {
		s.reap(ctx, name, prev)
	}

	cmd, err := s.opts.Launcher.Command(ctx, desc)
	if err == nil {
		var p *process
		stderr := logging.LineWriter(logging.LevelInfo, "Service:"+name)
		if p, err = startProcess(cmd, stderr); err == nil {
			e.mu.Lock()
			e.proc = p
			e.epoch = s.epochs.Add(1)
			e.status = api.StatusOff
			e.caps = nil
			e.lastErr = ""
			e.stoppedSeen = false
			e.mu.Unlock()
			logging.Info(subsystem, "Started service %s (pid %d) on %s", name, p.pid, desc.Endpoint())
			return nil
		}
	}

	e.mu.Lock()
	e.proc = nil
	e.status = api.StatusError
	e.caps = nil
	e.lastErr = err.Error()
	e.mu.Unlock()
	logging.Error(subsystem, err, "Failed to start service %s", name)
	return fmt.Errorf("failed to start service %s: %w", name, err)
}

// reap releases a dead handle, waiting at most ReapGrace for its wait goroutine.
func (s *Supervisor) reap(ctx context.Context, name string, p *process) {
	if !p.wait(ctx, s.opts.ReapGrace) {
		logging.Warn(subsystem, "Previous process %d of %s was not reaped within %s", p.pid, name, s.opts.ReapGrace)
	} else if err := p.exitErr(); err != nil {
		logging.Debug(subsystem, "Reaped previous process %d of %s: %v", p.pid, name, err)
	}
}

// Stop terminates the service and always leaves it STOPPED with no handle.
func (s *Supervisor) Stop(ctx context.Context, name string) (StopReport, error) {
	e, err := s.lookup(name)
	if err != nil {
		return StopReport{Name: name}, err
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return s.stopLocked(ctx, name, e), nil
}

func (s *Supervisor) stopLocked(ctx context.Context, name string, e *entry) StopReport {
	report := StopReport{Name: name}
	p := e.process()

	if !p.Alive() {
		report.AlreadyStopped = true
	} else {
		report.PID = p.pid
		if err := terminate(p); err != nil {
			logging.Debug(subsystem, "Terminate of %s (pid %d) failed: %v", name, p.pid, err)
		}
		if !p.wait(ctx, s.opts.StopTimeout) {
			report.Killed = true
			logging.Warn(subsystem, "Service %s (pid %d) did not exit within %s, killing", name, p.pid, s.opts.StopTimeout)
			if err := kill(p); err != nil {
				logging.Debug(subsystem, "Kill of %s (pid %d) failed: %v", name, p.pid, err)
			}
			// The kill grace is not shortened by ctx.
			if !p.wait(context.Background(), s.opts.KillGrace) {
				report.Survived = true
				logging.Error(subsystem, nil, "Service %s (pid %d) survived kill", name, p.pid)
			}
		}
	}

	e.mu.Lock()
	e.proc = nil
	e.status = api.StatusStopped
	e.caps = nil
	e.stoppedSeen = false
	e.mu.Unlock()

	if !report.AlreadyStopped {
		logging.Info(subsystem, "Stopped service %s (pid %d)", name, report.PID)
	}
	return report
}

// RefreshAll re-derives liveness for every service. It does no network I/O.
func (s *Supervisor) RefreshAll() {
	for _, e := range s.snapshot() {
		e.refresh()
	}
}

func (e *entry) refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.proc.Alive() {
		e.stoppedSeen = false
		return
	}
	e.caps = nil
	switch {
	case e.status == api.StatusStopped && !e.stoppedSeen:
		e.stoppedSeen = true
	case e.status == api.StatusError && e.proc == nil:
		// spawn failures stay visible until the next start
	default:
		if e.status == api.StatusOn || e.status == api.StatusLoading {
			logging.Warn(subsystem, "Service %s is no longer alive", e.desc.Name)
		}
		e.status = api.StatusOff
		e.stoppedSeen = false
	}
}

// CountAlive returns the number of services whose process is alive.
func (s *Supervisor) CountAlive() int {
	n := 0
	for _, e := range s.snapshot() {
		if e.process().Alive() {
			n++
		}
	}
	return n
}

// StartAllEnabled starts every enabled service that is not alive.
func (s *Supervisor) StartAllEnabled(ctx context.Context) api.BulkResult {
	var names []string
	for _, v := range s.List() {
		if v.Enabled && !v.Alive {
			names = append(names, v.Name)
		}
	}
	return s.bulk(ctx, names, s.Start)
}

// StopAllRunning stops every alive service.
func (s *Supervisor) StopAllRunning(ctx context.Context) api.BulkResult {
	var names []string
	for _, v := range s.List() {
		if v.Alive {
			names = append(names, v.Name)
		}
	}
	return s.bulk(ctx, names, s.stopChecked)
}

func (s *Supervisor) stopChecked(ctx context.Context, name string) error {
	report, err := s.Stop(ctx, name)
	if err != nil {
		return err
	}
	if report.Survived {
		return fmt.Errorf("process %d survived kill", report.PID)
	}
	return nil
}

// bulk runs fn for every name on the worker pool. Failures are isolated per service
// and ctx is checked before each service is handed to a worker.
func (s *Supervisor) bulk(ctx context.Context, names []string, fn func(context.Context, string) error) api.BulkResult {
	var (
		mu  sync.Mutex
		res api.BulkResult
	)
	record := func(name string, err error) {
		mu.Lock()
		res.Add(name, err)
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			record(name, err)
			continue
		}
		g.Go(func() error {
			record(name, fn(ctx, name))
			return nil
		})
	}
	_ = g.Wait()
	res.Sort()
	return res
}

// WaitForZeroAlive polls CountAlive until it reaches zero or max elapses. On the deadline
// the survivors are marked STOPPED, logged and returned with ErrShutdownDeadline.
func (s *Supervisor) WaitForZeroAlive(ctx context.Context, poll, max time.Duration) (int, error) {
	if poll <= 0 {
		poll = s.opts.PollInterval
	}
	if max <= 0 {
		max = s.opts.MaxShutdownWait
	}

	deadline := time.NewTimer(max)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if s.CountAlive() == 0 {
			return 0, nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			n := s.forceReport()
			return n, fmt.Errorf("%w: %d services still alive", ErrShutdownDeadline, n)
		case <-ctx.Done():
			return s.CountAlive(), ctx.Err()
		}
	}
}

func (s *Supervisor) forceReport() int {
	n := 0
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if e.proc.Alive() {
			n++
			logging.Error(subsystem, nil, "Service %s (pid %d) still alive after shutdown wait", e.desc.Name, e.proc.pid)
			e.status = api.StatusStopped
			e.caps = nil
		}
		e.mu.Unlock()
	}
	return n
}

// Toggle flips the enabled flag. A running service keeps running.
func (s *Supervisor) Toggle(name string) (bool, error) {
	e, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.desc.Enabled = !e.desc.Enabled
	return e.desc.Enabled, nil
}

// Reload stops every service, waits for them to exit and swaps in descriptors.
func (s *Supervisor) Reload(ctx context.Context, descriptors []Descriptor) error {
	entries, order, err := buildTable(descriptors)
	if err != nil {
		return err
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	// The old table is always drained, even when ctx is cancelled.
	stopCtx := context.WithoutCancel(ctx)
	res := s.bulk(stopCtx, s.Names(), s.stopAndRetire)
	for name, msg := range res.Failed {
		logging.Warn(subsystem, "Reload: stopping %s: %s", name, msg)
	}
	if n, err := s.WaitForZeroAlive(stopCtx, 0, 0); err != nil {
		logging.Warn(subsystem, "Reload continues with %d services still alive: %v", n, err)
	}

	s.mu.Lock()
	s.entries, s.order = entries, order
	s.mu.Unlock()

	logging.Info(subsystem, "Reloaded service table with %d services", len(order))
	return nil
}

func (s *Supervisor) stopAndRetire(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	report := s.stopLocked(ctx, name, e)
	e.mu.Lock()
	e.retired = true
	e.mu.Unlock()
	if report.Survived {
		return fmt.Errorf("process %d survived kill", report.PID)
	}
	return nil
}

// MarkDead clears the cache of a service whose process is not alive and sets it OFF.
// It reports whether the service was dead.
func (s *Supervisor) MarkDead(name string) (bool, error) {
	e, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc.Alive() {
		return false, nil
	}
	e.caps = nil
	if !(e.status == api.StatusError && e.proc == nil) {
		e.status = api.StatusOff
	}
	return true, nil
}

// BeginDiscovery moves an alive service of the given epoch to LOADING.
func (s *Supervisor) BeginDiscovery(name string, epoch uint64) bool {
	e, err := s.lookup(name)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch || !e.proc.Alive() || e.status == api.StatusStopped {
		return false
	}
	e.status = api.StatusLoading
	return true
}

// FinishDiscovery stores the outcome of a discovery started for epoch. Results for an
// older process generation, a stopped service or a dead process are dropped.
// A failed discovery leaves any previous bundle in place but sets ERROR.
func (s *Supervisor) FinishDiscovery(name string, epoch uint64, bundle *api.CapabilityBundle, discoveryErr error) bool {
	e, err := s.lookup(name)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch || !e.proc.Alive() || e.status == api.StatusStopped {
		return false
	}
	if discoveryErr != nil || bundle == nil {
		e.status = api.StatusError
		if discoveryErr != nil {
			e.lastErr = discoveryErr.Error()
		}
		return true
	}
	e.caps = bundle
	e.status = api.StatusOn
	e.lastErr = ""
	return true
}

// PromoteLoaded moves a LOADING service that already holds a bundle to ON.
func (s *Supervisor) PromoteLoaded(name string) bool {
	e, err := s.lookup(name)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == api.StatusLoading && e.caps != nil && e.proc.Alive() {
		e.status = api.StatusOn
		return true
	}
	return false
}
