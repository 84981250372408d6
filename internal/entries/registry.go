package entries

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"cassa/internal/gateway"
	"cassa/internal/log"
)

// DefaultIdleTTL is how long an unused workspace stays loaded.
const DefaultIdleTTL = 30 * time.Minute

type cachedWorkspace struct {
	ws   *Workspace
	used atomic.Int64 // unix nanos of the last Get
}

// Registry keeps one loaded Workspace per group for long-lived servers.
// Concurrent first requests for a group share a single load. Workspaces idle
// for longer than the idle TTL are dropped by CleanExpired.
type Registry struct {
	gw     gateway.Gateway
	logger *log.Logger
	opts   []Option
	now    Clock
	idle   time.Duration

	mu         sync.RWMutex
	workspaces map[string]*cachedWorkspace
	loads      singleflight.Group
}

func NewRegistry(gw gateway.Gateway, logger *log.Logger, opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		gw:         gw,
		logger:     logger.WithComponent(log.ComponentEntries),
		opts:       opts,
		now:        o.now,
		idle:       o.idle,
		workspaces: make(map[string]*cachedWorkspace),
	}
}

// Get returns the group's workspace, loading it on first use.
func (r *Registry) Get(ctx context.Context, groupID string) (*Workspace, error) {
	if c := r.lookup(groupID); c != nil {
		c.used.Store(r.now().UnixNano())
		return c.ws, nil
	}

	v, err, _ := r.loads.Do(groupID, func() (any, error) {
		if c := r.lookup(groupID); c != nil {
			return c, nil
		}
		w := NewWorkspace(r.gw, r.logger, r.opts...)
		// shared by every waiter, so one caller's cancellation must not fail the rest
		if err := w.Switch(context.WithoutCancel(ctx), groupID); err != nil {
			return nil, err
		}
		c := &cachedWorkspace{ws: w}
		r.mu.Lock()
		r.workspaces[groupID] = c
		r.mu.Unlock()
		r.logger.InfoContext(ctx, "Workspace loaded", log.FieldGroupID, groupID)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	c := v.(*cachedWorkspace)
	c.used.Store(r.now().UnixNano())
	return c.ws, nil
}

func (r *Registry) lookup(groupID string) *cachedWorkspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workspaces[groupID]
}

// Invalidate reloads a cached workspace. Groups not cached are left alone.
func (r *Registry) Invalidate(ctx context.Context, groupID string) error {
	c := r.lookup(groupID)
	if c == nil {
		return nil
	}
	return c.ws.Reload(ctx)
}

// CleanExpired drops workspaces not used within the idle TTL and returns how
// many were dropped. The next Get loads them again.
func (r *Registry) CleanExpired() int {
	cutoff := r.now().Add(-r.idle).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, c := range r.workspaces {
		if c.used.Load() < cutoff {
			delete(r.workspaces, id)
			n++
		}
	}
	return n
}

// Len returns the number of loaded workspaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}
