package registry_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/adapter/adaptertest"
	"github.com/tenantkit/tenantkit/pkg/adapter/gormadapter"
	"github.com/tenantkit/tenantkit/pkg/cache"
	"github.com/tenantkit/tenantkit/pkg/migrate"
	"github.com/tenantkit/tenantkit/pkg/query"
	"github.com/tenantkit/tenantkit/pkg/registry"
	"github.com/tenantkit/tenantkit/pkg/strategy"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

func newSchemaRegistry(t *testing.T, fake *adaptertest.Fake) *registry.Registry {
	t.Helper()
	r, err := registry.New(registry.Config{
		Strategy: registry.StrategySchema,
		Backend:  fake,
		URL:      "fake://host/app",
		Cache:    cache.Config{Enabled: true, TTL: time.Minute},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestConfigValidate(t *testing.T) {
	valid := registry.Config{
		Strategy:    registry.StrategyRowLevel,
		Adapter:     registry.AdapterPostgres,
		URL:         "postgres://localhost/app",
		Collections: []string{"users"},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*registry.Config)
	}{
		{"unknown strategy", func(c *registry.Config) { c.Strategy = "per-rack" }},
		{"unknown adapter", func(c *registry.Config) { c.Adapter = "oracle" }},
		{"missing url", func(c *registry.Config) { c.URL = "" }},
		{"row-level without collections", func(c *registry.Config) { c.Collections = nil }},
		{"schema on mongo", func(c *registry.Config) {
			c.Strategy = registry.StrategySchema
			c.Adapter = registry.AdapterMongo
		}},
		{"database without placeholder", func(c *registry.Config) {
			c.Strategy = registry.StrategyDatabase
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tenant.ErrConfiguration)

			_, err = registry.New(cfg)
			assert.ErrorIs(t, err, tenant.ErrConfiguration)
		})
	}
}

func TestRegistry_TenantLifecycle(t *testing.T) {
	fake := adaptertest.New()
	r := newSchemaRegistry(t, fake)
	ctx := context.Background()

	require.NoError(t, r.CreateTenant(ctx, "Acme Corp", strategy.CreateOptions{}))

	ids, err := r.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_corp"}, ids)

	ok, err := r.TenantExists(ctx, "acme_corp")
	require.NoError(t, err)
	assert.True(t, ok)

	err = r.CreateTenant(ctx, "acme_corp", strategy.CreateOptions{})
	assert.ErrorIs(t, err, tenant.ErrTenantAlreadyExists)

	require.NoError(t, r.DeleteTenant(ctx, "acme_corp"))
	err = r.DeleteTenant(ctx, "acme_corp")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestRegistry_ForTenantCachesConnections(t *testing.T) {
	fake := adaptertest.New()
	r := newSchemaRegistry(t, fake)
	ctx := context.Background()

	require.NoError(t, r.CreateTenant(ctx, "acme", strategy.CreateOptions{}))
	before := fake.Connects()

	l1, err := r.ForTenant(ctx, "acme")
	require.NoError(t, err)
	l2, err := r.ForTenant(ctx, "acme")
	require.NoError(t, err)

	assert.Same(t, l1.Handle(), l2.Handle())
	assert.Equal(t, before+1, fake.Connects())

	require.NoError(t, l1.Release(ctx))
	require.NoError(t, l2.Release(ctx))

	st := r.Stats()
	assert.Equal(t, 1, st.CachedConnections)
	assert.Equal(t, "schema", st.Strategy)
	assert.Equal(t, "fake", st.Adapter)
}

func TestRegistry_ForTenantConcurrent(t *testing.T) {
	fake := adaptertest.New()
	fake.ConnectDelay = 10 * time.Millisecond
	r := newSchemaRegistry(t, fake)
	ctx := context.Background()

	require.NoError(t, r.CreateTenant(ctx, "acme", strategy.CreateOptions{}))
	before := fake.Connects()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := r.ForTenant(ctx, "acme")
			errs[i] = err
			if err == nil {
				_ = l.Release(ctx)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, before+1, fake.Connects(), "concurrent acquisitions must share one establishment")
}

func TestRegistry_DeleteInvalidatesCache(t *testing.T) {
	fake := adaptertest.New()
	r := newSchemaRegistry(t, fake)
	ctx := context.Background()

	require.NoError(t, r.CreateTenant(ctx, "acme", strategy.CreateOptions{}))
	l, err := r.ForTenant(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
	require.Equal(t, 1, r.Stats().CachedConnections)

	require.NoError(t, r.DeleteTenant(ctx, "acme"))
	assert.Zero(t, r.Stats().CachedConnections)
}

func TestRegistry_MigrateTenant(t *testing.T) {
	fake := adaptertest.New()
	var migrated []adapter.Descriptor
	var mu sync.Mutex
	runner := migrate.RunnerFunc(func(_ context.Context, d adapter.Descriptor) error {
		mu.Lock()
		defer mu.Unlock()
		migrated = append(migrated, d)
		return nil
	})

	r, err := registry.New(registry.Config{
		Strategy: registry.StrategySchema,
		Backend:  fake,
		URL:      "fake://host/app",
		Runner:   runner,
		Cache:    cache.Config{Enabled: true, TTL: time.Minute},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	ctx := context.Background()

	require.NoError(t, r.CreateTenant(ctx, "acme", strategy.CreateOptions{RunMigrations: true}))

	require.Len(t, migrated, 1)
	assert.Equal(t, "acme", migrated[0].Schema)
}

func TestRegistry_MigrateWithoutRunner(t *testing.T) {
	fake := adaptertest.New()
	r := newSchemaRegistry(t, fake)

	err := r.MigrateTenant(context.Background(), "acme")
	assert.ErrorIs(t, err, tenant.ErrConfiguration)
}

func TestRegistry_InvalidIDRejected(t *testing.T) {
	fake := adaptertest.New()
	r := newSchemaRegistry(t, fake)
	ctx := context.Background()

	_, err := r.ForTenant(ctx, "")
	assert.ErrorIs(t, err, tenant.ErrInvalidTenantID)
	assert.ErrorIs(t, r.CreateTenant(ctx, "---", strategy.CreateOptions{}), tenant.ErrInvalidTenantID)
	assert.ErrorIs(t, r.DeleteTenant(ctx, ""), tenant.ErrInvalidTenantID)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("TENANTKIT_STRATEGY", "database")
	t.Setenv("TENANTKIT_ADAPTER", "gorm-postgres")
	t.Setenv("TENANTKIT_URL", "postgres://db/{tenant}")
	t.Setenv("TENANTKIT_COLLECTIONS", "users, orders")
	t.Setenv("TENANTKIT_MIGRATIONS_PATH", "/var/migrations")

	cfg := registry.ConfigFromEnv()
	assert.Equal(t, "database", cfg.Strategy)
	assert.Equal(t, "gorm-postgres", cfg.Adapter)
	assert.Equal(t, "postgres://db/{tenant}", cfg.URL)
	assert.Equal(t, []string{"users", "orders"}, cfg.Collections)
	assert.Equal(t, "/var/migrations", cfg.MigrationsPath)
	require.NoError(t, cfg.Validate())
}

// End-to-end over the ORM adapter with a real sqlite database: row-level
// isolation through the full registry stack.
func TestRegistry_RowLevelOverSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	backend := gormadapter.New("sqlite", query.DialectMySQL, func(adapter.Descriptor) (gorm.Dialector, error) {
		return sqlite.Open(path), nil
	})

	r, err := registry.New(registry.Config{
		Strategy:    registry.StrategyRowLevel,
		Backend:     backend,
		URL:         "sqlite://" + path,
		Collections: []string{"items"},
		Cache:       cache.Config{Enabled: true, TTL: time.Minute},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	ctx := context.Background()

	setup, err := backend.Connect(ctx, adapter.Descriptor{URL: "sqlite://" + path})
	require.NoError(t, err)
	require.NoError(t, setup.Exec(ctx,
		"CREATE TABLE items (id TEXT PRIMARY KEY, tenant_id TEXT, name TEXT)"))
	require.NoError(t, setup.Close(ctx))

	acme, err := r.ForTenant(ctx, "acme")
	require.NoError(t, err)
	globex, err := r.ForTenant(ctx, "globex")
	require.NoError(t, err)

	_, err = acme.Handle().Insert(ctx, "items", map[string]any{"name": "widget"})
	require.NoError(t, err)
	_, err = globex.Handle().Insert(ctx, "items", map[string]any{"name": "gizmo"})
	require.NoError(t, err)

	recs, err := acme.Handle().Find(ctx, "items", query.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "widget", recs[0]["name"])

	ids, err := r.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, ids)

	require.NoError(t, r.DeleteTenant(ctx, "acme"))
	n, err := globex.Handle().Count(ctx, "items", query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, acme.Release(ctx))
	require.NoError(t, globex.Release(ctx))
}
