// Package registry is the façade tying the pieces together: it resolves a
// strategy/adapter pair from configuration, caches tenant connections, and
// exposes the tenant lifecycle operations applications call.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/adapter/gormadapter"
	"github.com/tenantkit/tenantkit/pkg/adapter/mongoadapter"
	"github.com/tenantkit/tenantkit/pkg/adapter/sqladapter"
	"github.com/tenantkit/tenantkit/pkg/cache"
	"github.com/tenantkit/tenantkit/pkg/migrate"
	"github.com/tenantkit/tenantkit/pkg/strategy"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// Registry is an explicit handle over one configured tenancy setup. No
// package-level state: applications construct one and pass it around.
type Registry struct {
	cfg    Config
	ad     adapter.Adapter
	strat  strategy.Strategy
	cache  *cache.ConnCache
	runner migrate.Runner
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg and resolves the strategy/adapter pair.
func New(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ad := cfg.Backend
	if ad == nil {
		switch cfg.Adapter {
		case AdapterPostgres:
			ad = sqladapter.NewPostgres()
		case AdapterMySQL:
			ad = sqladapter.NewMySQL()
		case AdapterGormPostgres:
			ad = gormadapter.NewPostgres()
		case AdapterGormMySQL:
			ad = gormadapter.NewMySQL()
		case AdapterMongo:
			ad = mongoadapter.New()
		}
	}

	var strat strategy.Strategy
	switch cfg.Strategy {
	case StrategyRowLevel:
		strat = strategy.NewRowLevel(ad, adapter.Descriptor{URL: cfg.URL}, cfg.TenantField, cfg.Collections)
	case StrategySchema:
		strat = strategy.NewSchemaPerTenant(ad, adapter.Descriptor{URL: cfg.URL})
	case StrategyDatabase:
		var err error
		strat, err = strategy.NewDatabasePerTenant(ad, cfg.URL)
		if err != nil {
			return nil, err
		}
	}

	runner := cfg.Runner
	if runner == nil && cfg.MigrationsPath != "" {
		runner = migrate.NewGolangMigrateRunner(cfg.MigrationsPath)
	}

	r := &Registry{
		cfg:    cfg,
		ad:     ad,
		strat:  strat,
		runner: runner,
		logger: logger,
	}
	r.cache = cache.New(cfg.Cache, func(ctx context.Context, h adapter.Handle) error {
		return ad.Disconnect(ctx, h)
	}, logger)

	logger.Info("tenant registry ready",
		"strategy", strat.Name(), "adapter", ad.Name(), "cache_enabled", !cfg.Cache.Bypassed())
	return r, nil
}

// ForTenant returns a leased, tenant-scoped connection. Callers release
// the lease when done; the underlying connection stays cached.
func (r *Registry) ForTenant(ctx context.Context, tenantID string) (*cache.Lease, error) {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return nil, err
	}
	// Strategy errors arrive already wrapped with tenant and operation.
	return r.cache.Acquire(ctx, sid, func(ctx context.Context) (adapter.Handle, error) {
		return r.strat.GetConnection(ctx, sid)
	})
}

// CreateTenant provisions a tenant. The configured default template
// applies under the schema strategy when opts names none.
func (r *Registry) CreateTenant(ctx context.Context, tenantID string, opts strategy.CreateOptions) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	if opts.Template == "" && r.cfg.Strategy == StrategySchema {
		opts.Template = r.cfg.Template
	}
	if err := r.strat.CreateTenant(ctx, sid, opts); err != nil {
		r.logger.Error("create tenant failed", "tenant", sid, "error", err)
		return err
	}
	r.logger.Info("tenant created", "tenant", sid, "strategy", r.strat.Name())
	if opts.RunMigrations {
		return r.MigrateTenant(ctx, sid)
	}
	return nil
}

// DeleteTenant removes a tenant. Its cached connection is invalidated
// first so no handle outlives the tenant.
func (r *Registry) DeleteTenant(ctx context.Context, tenantID string) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	r.cache.Invalidate(ctx, sid)
	if err := r.strat.DeleteTenant(ctx, sid); err != nil {
		r.logger.Error("delete tenant failed", "tenant", sid, "error", err)
		return err
	}
	r.logger.Info("tenant deleted", "tenant", sid, "strategy", r.strat.Name())
	return nil
}

// MigrateTenant runs the configured migration runner against the
// tenant's descriptor, serialized per tenant through a migration lock.
func (r *Registry) MigrateTenant(ctx context.Context, tenantID string) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	if r.runner == nil {
		return fmt.Errorf("%w: no migration runner configured", tenant.ErrConfiguration)
	}
	desc, err := r.strat.Descriptor(sid)
	if err != nil {
		return err
	}

	// The lock handle is unscoped on purpose: tenant-scoped handles
	// refuse the raw commands advisory locking needs.
	lockHandle, err := r.ad.Connect(ctx, desc)
	if err != nil {
		return tenant.NewOpError("migrate", sid, err)
	}
	defer func() { _ = r.ad.Disconnect(ctx, lockHandle) }()

	locker := migrate.NewLocker(lockHandle, r.ad.Name())
	err = locker.WithLock(ctx, sid, func() error {
		return r.runner.RunMigrations(ctx, desc)
	})
	if err != nil {
		r.logger.Error("migrate tenant failed", "tenant", sid, "error", err)
		return tenant.NewOpError("migrate", sid, err)
	}
	r.logger.Info("tenant migrated", "tenant", sid)
	return nil
}

// ListTenants returns all provisioned tenant ids.
func (r *Registry) ListTenants(ctx context.Context) ([]string, error) {
	return r.strat.ListTenants(ctx)
}

// TenantExists reports whether the tenant is provisioned.
func (r *Registry) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	return r.strat.TenantExists(ctx, tenantID)
}

// Stats describes the registry's connection state.
type Stats struct {
	CachedConnections int    `json:"cachedConnections"`
	TotalConnections  int64  `json:"totalConnections"`
	Strategy          string `json:"strategy"`
	Adapter           string `json:"adapter"`
}

// Stats returns a point-in-time snapshot.
func (r *Registry) Stats() Stats {
	cs := r.cache.Stats()
	return Stats{
		CachedConnections: cs.Size,
		TotalConnections:  cs.Connects,
		Strategy:          r.strat.Name(),
		Adapter:           r.ad.Name(),
	}
}

// Close drains the connection cache and releases the strategy's
// administrative connections. Idempotent.
func (r *Registry) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		cerr := r.cache.Close(ctx)
		serr := r.strat.Close(ctx)
		if cerr != nil {
			r.closeErr = cerr
		} else {
			r.closeErr = serr
		}
		r.logger.Info("tenant registry closed")
	})
	return r.closeErr
}
