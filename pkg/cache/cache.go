// Package cache implements the TTL-keyed store of live per-tenant
// connections: single-flight establishment, reference-counted handles so
// a sweep never closes a connection still held by an in-flight caller,
// and a background eviction sweep.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tenantkit/tenantkit/pkg/adapter"
)

// ConnectFunc establishes a connection for a tenant on cache miss.
type ConnectFunc func(ctx context.Context) (adapter.Handle, error)

// DisconnectFunc closes a handle once its last reference is released.
type DisconnectFunc func(ctx context.Context, h adapter.Handle) error

// ConnCache caches live tenant connections keyed by tenant id.
type ConnCache struct {
	cfg        Config
	disconnect DisconnectFunc
	logger     *slog.Logger

	// now is the clock; tests substitute it to drive TTL expiry.
	now func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	connects  atomic.Int64

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// entry is one cached connection. refs starts at 1 (the cache's own
// reference); the underlying disconnect runs when it reaches zero.
type entry struct {
	tenantID  string
	handle    adapter.Handle
	createdAt time.Time
	hits      atomic.Int64
	refs      atomic.Int64
}

func (e *entry) acquire() bool {
	for {
		n := e.refs.Load()
		if n <= 0 {
			return false
		}
		if e.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// New creates a connection cache. disconnect is invoked exactly once per
// cached handle, when its last reference is released. The background
// sweep starts immediately unless the config bypasses caching.
func New(cfg Config, disconnect DisconnectFunc, logger *slog.Logger) *ConnCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ConnCache{
		cfg:        cfg,
		disconnect: disconnect,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[string]*entry),
		sweepStop:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}
	if !cfg.Bypassed() && cfg.SweepInterval > 0 {
		go c.sweepLoop()
	} else {
		close(c.sweepDone)
	}
	return c
}

// Lease is a caller's reference to a connection. Release returns the
// reference; for uncached (bypass) connections it closes the handle.
type Lease struct {
	handle  adapter.Handle
	release func(ctx context.Context) error
	once    sync.Once
}

// Handle returns the connection the lease guards.
func (l *Lease) Handle() adapter.Handle { return l.handle }

// Release drops the caller's reference. Safe to call more than once.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		if l.release != nil {
			err = l.release(ctx)
		}
	})
	return err
}

// Acquire returns a leased connection for the tenant, establishing one
// through connect on miss. Concurrent acquisitions for the same tenant
// share a single establishment attempt; a failed attempt leaves the key
// absent so the next call retries.
func (c *ConnCache) Acquire(ctx context.Context, tenantID string, connect ConnectFunc) (*Lease, error) {
	if c.cfg.Bypassed() {
		h, err := connect(ctx)
		if err != nil {
			return nil, err
		}
		c.connects.Add(1)
		return &Lease{handle: h, release: func(ctx context.Context) error {
			return c.disconnect(ctx, h)
		}}, nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		if lease, ok := c.tryHit(tenantID); ok {
			return lease, nil
		}

		c.misses.Add(1)
		v, err, _ := c.group.Do(tenantID, func() (any, error) {
			return c.establish(ctx, tenantID, connect)
		})
		if err != nil {
			return nil, err
		}

		e := v.(*entry)
		if e.acquire() {
			return c.leaseFor(e), nil
		}
		// The entry was invalidated between establishment and acquisition;
		// retry from the top.
	}
	return nil, fmt.Errorf("connection for tenant %q kept disappearing during acquisition", tenantID)
}

// establish is the single-flight body: it re-checks the key (another
// flight may have populated it while this one queued on the group),
// evicts an entry that expired since the hit check so its handle is not
// leaked by the overwrite, and connects.
func (c *ConnCache) establish(ctx context.Context, tenantID string, connect ConnectFunc) (*entry, error) {
	c.mu.Lock()
	e, ok := c.entries[tenantID]
	if ok && !c.expired(e) {
		c.mu.Unlock()
		return e, nil
	}
	if ok {
		delete(c.entries, tenantID)
		c.evictions.Add(1)
	}
	c.mu.Unlock()
	if ok {
		c.releaseEntry(ctx, e)
	}

	h, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	c.connects.Add(1)
	ne := &entry{tenantID: tenantID, handle: h, createdAt: c.now()}
	ne.refs.Store(1)
	c.mu.Lock()
	c.entries[tenantID] = ne
	c.mu.Unlock()
	return ne, nil
}

func (c *ConnCache) tryHit(tenantID string) (*Lease, bool) {
	c.mu.Lock()
	e, ok := c.entries[tenantID]
	if ok && c.expired(e) {
		// Evict synchronously rather than serving a stale connection.
		delete(c.entries, tenantID)
		c.evictions.Add(1)
		c.mu.Unlock()
		c.releaseEntry(context.Background(), e)
		return nil, false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	if !e.acquire() {
		return nil, false
	}
	c.hits.Add(1)
	e.hits.Add(1)
	return c.leaseFor(e), true
}

func (c *ConnCache) leaseFor(e *entry) *Lease {
	return &Lease{handle: e.handle, release: func(ctx context.Context) error {
		return c.releaseEntry(ctx, e)
	}}
}

// releaseEntry drops one reference and disconnects when none remain.
func (c *ConnCache) releaseEntry(ctx context.Context, e *entry) error {
	if e.refs.Add(-1) > 0 {
		return nil
	}
	if err := c.disconnect(ctx, e.handle); err != nil {
		c.logger.Warn("disconnect failed", "tenant", e.tenantID, "error", err)
		return err
	}
	return nil
}

func (c *ConnCache) expired(e *entry) bool {
	return c.now().Sub(e.createdAt) >= c.cfg.TTL
}

// Invalidate synchronously removes the tenant's cached connection, if
// any. Used after lifecycle mutations so a deleted tenant's handle does
// not outlive the tenant.
func (c *ConnCache) Invalidate(ctx context.Context, tenantID string) {
	c.mu.Lock()
	e, ok := c.entries[tenantID]
	if ok {
		delete(c.entries, tenantID)
	}
	c.mu.Unlock()
	if ok {
		c.evictions.Add(1)
		_ = c.releaseEntry(ctx, e)
	}
}

// Sweep removes every expired entry. It runs on the background interval
// and is exported for tests and manual draining. Expired entries are
// snapshotted under the lock and released outside it, so foreground
// acquisitions never block on a disconnect.
func (c *ConnCache) Sweep(ctx context.Context) int {
	c.mu.Lock()
	var expired []*entry
	for id, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, id)
			expired = append(expired, e)
		}
	}
	c.mu.Unlock()

	for _, e := range expired {
		c.evictions.Add(1)
		_ = c.releaseEntry(ctx, e)
		c.logger.Debug("evicted expired connection", "tenant", e.tenantID)
	}
	return len(expired)
}

func (c *ConnCache) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep(context.Background())
		case <-c.sweepStop:
			return
		}
	}
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
	Connects  int64
}

// Stats returns current counters. Connects counts every establishment,
// including bypassed ones.
func (c *ConnCache) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Size:      size,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Connects:  c.connects.Load(),
	}
}

// Close stops the sweep and releases every cached connection. Idempotent
// and safe to call concurrently.
func (c *ConnCache) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.sweepStop)
		<-c.sweepDone

		c.mu.Lock()
		remaining := make([]*entry, 0, len(c.entries))
		for id, e := range c.entries {
			delete(c.entries, id)
			remaining = append(remaining, e)
		}
		c.mu.Unlock()

		for _, e := range remaining {
			if rerr := c.releaseEntry(ctx, e); rerr != nil && err == nil {
				err = rerr
			}
		}
	})
	return err
}
