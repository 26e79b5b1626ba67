package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/adapter/adaptertest"
)

func newTestCache(t *testing.T, cfg Config, fake *adaptertest.Fake) (*ConnCache, ConnectFunc) {
	t.Helper()
	c := New(cfg, fake.Disconnect, nil)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	connect := func(ctx context.Context) (adapter.Handle, error) {
		return fake.Connect(ctx, adapter.Descriptor{URL: "fake://h/db"})
	}
	return c, connect
}

func TestAcquire_HitSharesHandle(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: time.Minute}, fake)
	ctx := context.Background()

	l1, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	l2, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)

	assert.Same(t, l1.Handle(), l2.Handle())
	assert.Equal(t, int64(1), fake.Connects())

	st := c.Stats()
	assert.Equal(t, 1, st.Size)
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
}

func TestAcquire_SingleFlightUnderConcurrency(t *testing.T) {
	fake := adaptertest.New()
	fake.ConnectDelay = 20 * time.Millisecond
	c, connect := newTestCache(t, Config{Enabled: true, TTL: time.Minute}, fake)

	const n = 32
	var wg sync.WaitGroup
	handles := make([]adapter.Handle, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := c.Acquire(context.Background(), "acme", connect)
			errs[i] = err
			if err == nil {
				handles[i] = l.Handle()
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
	assert.Equal(t, int64(1), fake.Connects(), "cold cache must connect exactly once")
}

func TestAcquire_FailureIsNotCached(t *testing.T) {
	fake := adaptertest.New()
	fake.ConnectErr = errors.New("backend down")
	c, connect := newTestCache(t, Config{Enabled: true, TTL: time.Minute}, fake)
	ctx := context.Background()

	_, err := c.Acquire(ctx, "acme", connect)
	require.Error(t, err)
	assert.Zero(t, c.Stats().Size)

	fake.ConnectErr = nil
	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NotNil(t, l.Handle())
	assert.Equal(t, int64(1), fake.Connects())
}

func TestTTLExpiry_SweepDisconnectsOnce(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: 100 * time.Millisecond}, fake)

	base := time.Now()
	var offset atomic.Int64
	c.now = func() time.Time { return base.Add(time.Duration(offset.Load())) }

	ctx := context.Background()
	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	// Just before the TTL boundary the entry is still served.
	offset.Store(int64(99 * time.Millisecond))
	l2, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NoError(t, l2.Release(ctx))
	assert.Equal(t, int64(1), fake.Connects())

	// At TTL+1 the sweep evicts and disconnects exactly once.
	offset.Store(int64(101 * time.Millisecond))
	evicted := c.Sweep(ctx)
	assert.Equal(t, 1, evicted)
	assert.Zero(t, c.Stats().Size)
	assert.Equal(t, int64(1), fake.Disconnects())

	// Sweeping again is a no-op.
	assert.Zero(t, c.Sweep(ctx))
	assert.Equal(t, int64(1), fake.Disconnects())
}

func TestSweepNeverClosesHeldHandle(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: 50 * time.Millisecond}, fake)

	base := time.Now()
	var offset atomic.Int64
	c.now = func() time.Time { return base.Add(time.Duration(offset.Load())) }

	ctx := context.Background()
	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)

	offset.Store(int64(time.Second))
	c.Sweep(ctx)

	// The entry is gone from the cache but the caller's handle survives
	// until the lease is released.
	assert.Zero(t, c.Stats().Size)
	assert.Zero(t, fake.Disconnects())

	require.NoError(t, l.Release(ctx))
	assert.Equal(t, int64(1), fake.Disconnects())
}

func TestExpiredEntryEvictedOnAccess(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: 50 * time.Millisecond}, fake)

	base := time.Now()
	var offset atomic.Int64
	c.now = func() time.Time { return base.Add(time.Duration(offset.Load())) }

	ctx := context.Background()
	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	offset.Store(int64(time.Second))
	l2, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	defer l2.Release(ctx)

	// A fresh connection was established; the stale one is closed.
	assert.Equal(t, int64(2), fake.Connects())
	assert.Equal(t, int64(1), fake.Disconnects())
}

func TestEstablishEvictsExpiredEntry(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: 50 * time.Millisecond}, fake)

	base := time.Now()
	var offset atomic.Int64
	c.now = func() time.Time { return base.Add(time.Duration(offset.Load())) }

	ctx := context.Background()
	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	// The entry expires after the hit check but before the flight body
	// runs; the flight must release the stale handle before replacing it.
	offset.Store(int64(time.Second))
	e, err := c.establish(ctx, "acme", connect)
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, int64(2), fake.Connects())
	assert.Equal(t, int64(1), fake.Disconnects(), "stale handle must be disconnected exactly once")
	assert.Equal(t, 1, c.Stats().Size)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestInvalidate(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: time.Minute}, fake)
	ctx := context.Background()

	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	c.Invalidate(ctx, "acme")
	assert.Zero(t, c.Stats().Size)
	assert.Equal(t, int64(1), fake.Disconnects())

	// Invalidating an absent tenant is a no-op.
	c.Invalidate(ctx, "ghost")
}

func TestBypassMode(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: 0}, fake)
	ctx := context.Background()

	l1, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	l2, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)

	assert.NotSame(t, l1.Handle(), l2.Handle())
	assert.Equal(t, int64(2), fake.Connects())
	assert.Zero(t, c.Stats().Size)

	// Releasing a bypass lease closes its private connection.
	require.NoError(t, l1.Release(ctx))
	assert.Equal(t, int64(1), fake.Disconnects())
	require.NoError(t, l2.Release(ctx))
	assert.Equal(t, int64(2), fake.Disconnects())
}

func TestLeaseReleaseIdempotent(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: time.Minute}, fake)
	ctx := context.Background()

	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
	require.NoError(t, l.Release(ctx))

	// The cache still holds its own reference.
	assert.Equal(t, 1, c.Stats().Size)
	assert.Zero(t, fake.Disconnects())
}

func TestCloseIdempotent(t *testing.T) {
	fake := adaptertest.New()
	c, connect := newTestCache(t, Config{Enabled: true, TTL: time.Minute}, fake)
	ctx := context.Background()

	l, err := c.Acquire(ctx, "acme", connect)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, int64(1), fake.Disconnects())
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, int64(1), fake.Disconnects())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TENANTKIT_CACHE_ENABLED", "false")
	t.Setenv("TENANTKIT_CACHE_TTL", "120")
	t.Setenv("TENANTKIT_CACHE_SWEEP_INTERVAL", "7")

	cfg := ConfigFromEnv()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 120*time.Second, cfg.TTL)
	assert.Equal(t, 7*time.Second, cfg.SweepInterval)
	assert.True(t, cfg.Bypassed())
}
