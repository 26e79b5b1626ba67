package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/query"
	"github.com/tenantkit/tenantkit/pkg/scope"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// RowLevel isolates tenants by a discriminator column on shared tables.
// All tenants share one descriptor; connections are wrapped so every data
// operation carries the tenant filter.
type RowLevel struct {
	ad          adapter.Adapter
	base        adapter.Descriptor
	field       string
	collections []string
	admin       *adminConn
}

// NewRowLevel builds the row-level strategy. collections is the set of
// tables carrying the tenant field; tenant deletion and discovery iterate
// it. field defaults to scope.DefaultTenantField when empty.
func NewRowLevel(ad adapter.Adapter, base adapter.Descriptor, field string, collections []string) *RowLevel {
	if field == "" {
		field = scope.DefaultTenantField
	}
	return &RowLevel{
		ad:          ad,
		base:        base,
		field:       field,
		collections: append([]string(nil), collections...),
		admin:       newAdminConn(ad, base),
	}
}

func (s *RowLevel) Name() string { return "row-level" }

func (s *RowLevel) GetConnection(ctx context.Context, tenantID string) (adapter.Handle, error) {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return nil, err
	}
	h, err := s.ad.Connect(ctx, s.base)
	if err != nil {
		return nil, tenant.NewOpError("connect", sid, err)
	}
	// Wrap with the strategy's own field so a custom discriminator column
	// scopes reads the same way deletes and scans use it.
	return scope.Wrap(h, sid, s.field), nil
}

// CreateTenant is a no-op: a row-level tenant exists once it has rows.
// Template cloning has no meaning without a namespace per tenant.
func (s *RowLevel) CreateTenant(_ context.Context, tenantID string, opts CreateOptions) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	if opts.Template != "" {
		return tenant.NewOpError("create", sid,
			fmt.Errorf("%w: template cloning under row-level isolation", tenant.ErrNotSupported))
	}
	return nil
}

// DeleteTenant removes the tenant's rows from every tracked collection.
// Collections are deleted one at a time with no cross-collection
// transaction; a failure partway leaves earlier deletions in place.
func (s *RowLevel) DeleteTenant(ctx context.Context, tenantID string) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	h, err := s.admin.handle(ctx)
	if err != nil {
		return tenant.NewOpError("delete", sid, err)
	}
	for _, coll := range s.collections {
		if _, err := h.Delete(ctx, coll, query.Eq(s.field, sid)); err != nil {
			return tenant.NewOpError("delete", sid, fmt.Errorf("collection %s: %w", coll, err))
		}
	}
	return nil
}

// ListTenants scans the tracked collections for distinct tenant ids.
func (s *RowLevel) ListTenants(ctx context.Context) ([]string, error) {
	h, err := s.admin.handle(ctx)
	if err != nil {
		return nil, tenant.NewOpError("list", "", err)
	}
	seen := map[string]bool{}
	for _, coll := range s.collections {
		recs, err := h.Find(ctx, coll, query.Filter{})
		if err != nil {
			return nil, tenant.NewOpError("list", "", fmt.Errorf("collection %s: %w", coll, err))
		}
		for _, rec := range recs {
			if id, ok := rec[s.field].(string); ok && id != "" {
				seen[id] = true
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RowLevel) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return false, err
	}
	h, err := s.admin.handle(ctx)
	if err != nil {
		return false, tenant.NewOpError("exists", sid, err)
	}
	for _, coll := range s.collections {
		n, err := h.Count(ctx, coll, query.Eq(s.field, sid))
		if err != nil {
			return false, tenant.NewOpError("exists", sid, fmt.Errorf("collection %s: %w", coll, err))
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *RowLevel) Descriptor(tenantID string) (adapter.Descriptor, error) {
	if _, err := tenant.Sanitize(tenantID); err != nil {
		return adapter.Descriptor{}, err
	}
	return s.base, nil
}

func (s *RowLevel) Close(ctx context.Context) error {
	return s.admin.close(ctx)
}
