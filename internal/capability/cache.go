package capability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/HorseSword/local-mcp-manager/internal/api"
	"github.com/HorseSword/local-mcp-manager/internal/gateway"
	"github.com/HorseSword/local-mcp-manager/internal/supervisor"
	"github.com/HorseSword/local-mcp-manager/pkg/logging"
)

const subsystem = "Capabilities"

// DefaultReadyWait is how long discovery keeps retrying a freshly started service whose
// endpoint is not accepting connections yet.
const DefaultReadyWait = 10 * time.Second

// DefaultRetryInterval is the pause between discovery attempts within ReadyWait.
const DefaultRetryInterval = 500 * time.Millisecond

// Source is the service table the cache reads liveness from and writes status to.
// *supervisor.Supervisor implements it.
type Source interface {
	Get(name string) (supervisor.DescriptorView, error)
	List() []supervisor.DescriptorView
	RefreshAll()
	MarkDead(name string) (bool, error)
	BeginDiscovery(name string, epoch uint64) bool
	FinishDiscovery(name string, epoch uint64, bundle *api.CapabilityBundle, err error) bool
	PromoteLoaded(name string) bool
}

// Discoverer lists the capabilities of a target. *gateway.Gateway implements it.
type Discoverer interface {
	ListCapabilities(ctx context.Context, target gateway.Target) (api.CapabilityBundle, error)
}

// Entry is the cached state of one service.
type Entry struct {
	Name         string                `json:"name"`
	Status       api.ServiceStatus     `json:"status"`
	Capabilities *api.CapabilityBundle `json:"capabilities,omitempty"`
	// Cached is set when the bundle was served without a network call.
	Cached bool `json:"cached"`
}

// Result is one per-service outcome of GetAll.
type Result struct {
	Entry
	Error string `json:"error,omitempty"`
}

// Options tune a Cache.
type Options struct {
	ReadyWait     time.Duration
	RetryInterval time.Duration
}

// Cache holds discovered capabilities on top of a Source.
type Cache struct {
	src  Source
	disc Discoverer
	opts Options

	group singleflight.Group
	wg    sync.WaitGroup
}

// New creates a Cache.
func New(src Source, disc Discoverer, opts Options) *Cache {
	if opts.ReadyWait < 0 {
		opts.ReadyWait = 0
	} else if opts.ReadyWait == 0 {
		opts.ReadyWait = DefaultReadyWait
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	return &Cache{src: src, disc: disc, opts: opts}
}

// TargetOf returns the gateway target of a service view.
func TargetOf(v supervisor.DescriptorView) gateway.Target {
	return gateway.Target{Name: v.Name, Host: v.BindHost, Port: v.BindPort}
}

// Get returns the capabilities of name. A cached bundle is returned without network I/O
// unless force is set. A service that is not alive is moved to OFF and reported with
// api.ErrServiceNotRunning.
func (c *Cache) Get(ctx context.Context, name string, force bool) (Entry, error) {
	v, err := c.src.Get(name)
	if err != nil {
		return Entry{Name: name}, err
	}
	if !v.Alive {
		if _, err := c.src.MarkDead(name); err != nil {
			return Entry{Name: name}, err
		}
		return Entry{Name: name, Status: api.StatusOff}, fmt.Errorf("%s: %w", name, api.ErrServiceNotRunning)
	}
	if v.Capabilities != nil && !force {
		return Entry{Name: name, Status: v.Status, Capabilities: v.Capabilities, Cached: true}, nil
	}
	return c.discover(ctx, v)
}

// discover runs one deduplicated discovery for the process generation of v. The shared
// call is detached from ctx so one caller giving up does not fail the others.
func (c *Cache) discover(ctx context.Context, v supervisor.DescriptorView) (Entry, error) {
	key := fmt.Sprintf("%s#%d", v.Name, v.Epoch)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.runDiscovery(context.WithoutCancel(ctx), v)
	})

	select {
	case <-ctx.Done():
		return Entry{Name: v.Name, Status: api.StatusLoading}, ctx.Err()
	case res := <-ch:
		entry := Entry{Name: v.Name}
		if latest, err := c.src.Get(v.Name); err == nil {
			entry.Status = latest.Status
		}
		if res.Err != nil {
			return entry, fmt.Errorf("discover %s: %w", v.Name, res.Err)
		}
		entry.Capabilities = res.Val.(*api.CapabilityBundle)
		return entry, nil
	}
}

func (c *Cache) runDiscovery(ctx context.Context, v supervisor.DescriptorView) (*api.CapabilityBundle, error) {
	c.src.BeginDiscovery(v.Name, v.Epoch)
	target := TargetOf(v)

	deadline := time.Now().Add(c.opts.ReadyWait)
	for attempt := 1; ; attempt++ {
		bundle, err := c.disc.ListCapabilities(ctx, target)
		if err == nil {
			c.src.FinishDiscovery(v.Name, v.Epoch, &bundle, nil)
			logging.Info(subsystem, "Discovered %d capabilities of %s", bundle.Count(), v.Name)
			return &bundle, nil
		}
		if time.Now().Add(c.opts.RetryInterval).After(deadline) || !c.sameProcess(v) {
			c.src.FinishDiscovery(v.Name, v.Epoch, nil, err)
			logging.Warn(subsystem, "Discovery of %s failed after %d attempts: %v", v.Name, attempt, err)
			return nil, err
		}
		logging.Debug(subsystem, "Discovery of %s not ready yet (attempt %d): %v", v.Name, attempt, err)
		select {
		case <-ctx.Done():
			c.src.FinishDiscovery(v.Name, v.Epoch, nil, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(c.opts.RetryInterval):
		}
	}
}

// sameProcess reports whether the process discovery was started for is still alive.
func (c *Cache) sameProcess(v supervisor.DescriptorView) bool {
	latest, err := c.src.Get(v.Name)
	return err == nil && latest.Alive && latest.Epoch == v.Epoch && latest.Status != api.StatusStopped
}

// CheckStatus reconciles statuses with liveness and cached bundles. Discoveries it
// launches run in the background; Wait blocks until they finish.
func (c *Cache) CheckStatus(ctx context.Context) {
	for _, v := range c.src.List() {
		switch {
		case !v.Alive:
			if v.Capabilities != nil || v.Status == api.StatusOn || v.Status == api.StatusLoading {
				_, _ = c.src.MarkDead(v.Name)
			}
		case v.Status == api.StatusLoading && v.Capabilities != nil:
			c.src.PromoteLoaded(v.Name)
		case v.Status == api.StatusOff && v.Capabilities == nil:
			c.wg.Add(1)
			go func(v supervisor.DescriptorView) {
				defer c.wg.Done()
				if _, err := c.discover(context.WithoutCancel(ctx), v); err != nil {
					logging.Debug(subsystem, "Background discovery of %s: %v", v.Name, err)
				}
			}(v)
		}
	}
}

// Wait blocks until every background discovery launched by CheckStatus has finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// GetAll fetches the capabilities of every service concurrently. A failing service is
// reported in its own Result and never fails the batch.
func (c *Cache) GetAll(ctx context.Context) map[string]Result {
	views := c.src.List()

	var mu sync.Mutex
	results := make(map[string]Result, len(views))

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range views {
		g.Go(func() error {
			entry, err := c.Get(gctx, v.Name, false)
			r := Result{Entry: entry}
			if err != nil {
				r.Error = err.Error()
			}
			mu.Lock()
			results[v.Name] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// StartReconciler refreshes liveness and runs CheckStatus every interval until ctx is done.
func (c *Cache) StartReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.src.RefreshAll()
				c.CheckStatus(ctx)
			}
		}
	}()
}
