// Package strategy implements the three tenant isolation models: row-level
// filtering on shared tables, one schema per tenant, and one database per
// tenant. A strategy owns tenant lifecycle (create, delete, list, exists)
// and hands out per-tenant connections; the adapter underneath supplies the
// backend mechanics.
package strategy

import (
	"context"
	"sync"

	"github.com/tenantkit/tenantkit/pkg/adapter"
)

// CreateOptions tunes tenant provisioning.
type CreateOptions struct {
	// Template names an existing namespace whose table structures are
	// copied into the new tenant's namespace. Only meaningful on
	// strategies with a namespace per tenant.
	Template string

	// RunMigrations requests a migration run right after provisioning.
	// The registry performs the run; strategies only record the request.
	RunMigrations bool
}

// Strategy is one isolation model. Tenant ids are sanitized at this
// boundary; everything below receives sanitized names only.
type Strategy interface {
	// Name identifies the model ("row-level", "schema", "database").
	Name() string

	// GetConnection opens a connection scoped to the tenant. The caller
	// owns the handle and closes it through the adapter.
	GetConnection(ctx context.Context, tenantID string) (adapter.Handle, error)

	// CreateTenant provisions the tenant's namespace.
	CreateTenant(ctx context.Context, tenantID string, opts CreateOptions) error

	// DeleteTenant removes the tenant and its data.
	DeleteTenant(ctx context.Context, tenantID string) error

	// ListTenants returns all known tenant ids, sorted.
	ListTenants(ctx context.Context) ([]string, error)

	// TenantExists reports whether the tenant is provisioned.
	TenantExists(ctx context.Context, tenantID string) (bool, error)

	// Descriptor returns the connection descriptor a migration runner
	// should target for the tenant.
	Descriptor(tenantID string) (adapter.Descriptor, error)

	// Close releases any administrative connections the strategy holds.
	Close(ctx context.Context) error
}

// adminConn lazily opens and caches one administrative connection. Every
// strategy needs a handle on the shared or system database for DDL and
// listing; opening it on first use keeps construction cheap and
// side-effect free.
type adminConn struct {
	ad   adapter.Adapter
	desc adapter.Descriptor

	mu sync.Mutex
	h  adapter.Handle
}

func newAdminConn(ad adapter.Adapter, desc adapter.Descriptor) *adminConn {
	return &adminConn{ad: ad, desc: desc}
}

func (a *adminConn) handle(ctx context.Context) (adapter.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.h != nil {
		return a.h, nil
	}
	h, err := a.ad.Connect(ctx, a.desc)
	if err != nil {
		return nil, err
	}
	a.h = h
	return h, nil
}

func (a *adminConn) close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.h == nil {
		return nil
	}
	err := a.ad.Disconnect(ctx, a.h)
	a.h = nil
	return err
}
