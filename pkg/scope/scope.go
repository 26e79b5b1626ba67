// Package scope implements the tenant middleware: a decorator around an
// adapter.Handle that injects the tenant identifier into every data
// operation, so callers never pass it explicitly and cannot forget it.
// The decorator composes with the underlying handle rather than mutating
// it; wrapping the same handle for two tenants yields two independent
// scoped views.
package scope

import (
	"context"
	"fmt"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/query"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// DefaultTenantField is the record field carrying the tenant identifier.
const DefaultTenantField = "tenant_id"

// Handle wraps an adapter.Handle with automatic tenant scoping.
type Handle struct {
	inner    adapter.Handle
	tenantID string
	field    string
}

var _ adapter.Handle = (*Handle)(nil)

// Wrap returns a tenant-scoped view of h. field selects the tenant column;
// pass "" for DefaultTenantField.
func Wrap(h adapter.Handle, tenantID, field string) *Handle {
	if field == "" {
		field = DefaultTenantField
	}
	return &Handle{inner: h, tenantID: tenantID, field: field}
}

// TenantID returns the tenant this handle is scoped to.
func (h *Handle) TenantID() string { return h.tenantID }

// Unwrap returns the underlying unscoped handle.
func (h *Handle) Unwrap() adapter.Handle { return h.inner }

// Insert stores the record with the tenant field set. A caller-supplied
// value for the tenant field is overwritten, never trusted.
func (h *Handle) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	scoped := make(map[string]any, len(record)+1)
	for k, v := range record {
		scoped[k] = v
	}
	scoped[h.field] = h.tenantID
	return h.inner.Insert(ctx, collection, scoped)
}

// Find returns matching records belonging to the tenant.
func (h *Handle) Find(ctx context.Context, collection string, filter query.Filter) ([]map[string]any, error) {
	return h.inner.Find(ctx, collection, h.scope(filter))
}

// Update applies changes to the tenant's matching records. The tenant
// field is stripped from the change set so an update can never move a
// record across tenants.
func (h *Handle) Update(ctx context.Context, collection string, filter query.Filter, changes map[string]any) (int64, error) {
	if _, ok := changes[h.field]; ok {
		cleaned := make(map[string]any, len(changes))
		for k, v := range changes {
			if k != h.field {
				cleaned[k] = v
			}
		}
		changes = cleaned
	}
	return h.inner.Update(ctx, collection, h.scope(filter), changes)
}

// Delete removes the tenant's matching records.
func (h *Handle) Delete(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	return h.inner.Delete(ctx, collection, h.scope(filter))
}

// Count counts the tenant's matching records.
func (h *Handle) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	return h.inner.Count(ctx, collection, h.scope(filter))
}

// Exec is refused on a scoped handle: raw commands bypass filter
// injection, so they are unsafe by default. Callers that need raw access
// must go through an unscoped handle and take on scoping themselves.
func (h *Handle) Exec(_ context.Context, command string, _ ...any) error {
	return fmt.Errorf("%w: raw exec on tenant-scoped handle (command %q)", tenant.ErrNotSupported, command)
}

// Close closes the underlying handle.
func (h *Handle) Close(ctx context.Context) error {
	return h.inner.Close(ctx)
}

func (h *Handle) scope(filter query.Filter) query.Filter {
	return query.WithTenant(filter, h.field, h.tenantID)
}
