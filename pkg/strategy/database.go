package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// reservedDatabases are system databases across the supported backends
// that must never be listed, created or dropped as tenants.
var reservedDatabases = map[string]bool{
	"postgres":           true,
	"template0":          true,
	"template1":          true,
	"admin":              true,
	"local":              true,
	"config":             true,
	"mysql":              true,
	"information_schema": true,
	"performance_schema": true,
	"sys":                true,
}

// DatabasePerTenant isolates tenants by a full database per tenant.
// Descriptors are derived from a URL template carrying the tenant
// placeholder; lifecycle operations run over a system descriptor pointing
// at the backend's administrative database.
type DatabasePerTenant struct {
	ad       adapter.Adapter
	template string
	admin    *adminConn
}

// NewDatabasePerTenant builds the database-per-tenant strategy. template
// must contain the adapter.TenantPlaceholder token exactly where the
// database name goes.
func NewDatabasePerTenant(ad adapter.Adapter, template string) (*DatabasePerTenant, error) {
	if !strings.Contains(template, adapter.TenantPlaceholder) {
		return nil, fmt.Errorf("%w: database URL template must contain %s",
			tenant.ErrConfiguration, adapter.TenantPlaceholder)
	}
	system := adapter.Descriptor{URL: adapter.ExpandTemplate(template, systemDatabase(ad.Name()))}
	return &DatabasePerTenant{
		ad:       ad,
		template: template,
		admin:    newAdminConn(ad, system),
	}, nil
}

// systemDatabase is the administrative database to run DDL from, by
// adapter family.
func systemDatabase(adapterName string) string {
	switch adapterName {
	case "mysql":
		return "mysql"
	case "mongo":
		return "admin"
	default:
		return "postgres"
	}
}

func (s *DatabasePerTenant) Name() string { return "database" }

func (s *DatabasePerTenant) GetConnection(ctx context.Context, tenantID string) (adapter.Handle, error) {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return nil, err
	}
	d, err := s.Descriptor(sid)
	if err != nil {
		return nil, err
	}
	h, err := s.ad.Connect(ctx, d)
	if err != nil {
		return nil, tenant.NewOpError("connect", sid, err)
	}
	return h, nil
}

func (s *DatabasePerTenant) CreateTenant(ctx context.Context, tenantID string, opts CreateOptions) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	if reservedDatabases[sid] {
		return fmt.Errorf("%w: %q is a reserved database name", tenant.ErrInvalidTenantID, sid)
	}
	if opts.Template != "" {
		return tenant.NewOpError("create", sid,
			fmt.Errorf("%w: template cloning under database-per-tenant isolation", tenant.ErrNotSupported))
	}
	exists, err := s.TenantExists(ctx, sid)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", tenant.ErrTenantAlreadyExists, sid)
	}
	h, err := s.admin.handle(ctx)
	if err != nil {
		return tenant.NewOpError("create", sid, err)
	}
	if err := s.ad.CreateNamespace(ctx, h, adapter.KindDatabase, sid); err != nil {
		return tenant.NewOpError("create", sid, err)
	}
	return nil
}

// DeleteTenant drops the tenant's database. On postgres-family backends
// sessions still bound to it are terminated first, best effort; the drop
// would otherwise fail while connections linger.
func (s *DatabasePerTenant) DeleteTenant(ctx context.Context, tenantID string) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	exists, err := s.TenantExists(ctx, sid)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", tenant.ErrTenantNotFound, sid)
	}
	h, err := s.admin.handle(ctx)
	if err != nil {
		return tenant.NewOpError("delete", sid, err)
	}
	if name := s.ad.Name(); name == "postgres" || name == "gorm" {
		_ = h.Exec(ctx,
			"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
			sid)
	}
	if err := s.ad.DropNamespace(ctx, h, adapter.KindDatabase, sid); err != nil {
		return tenant.NewOpError("delete", sid, err)
	}
	return nil
}

func (s *DatabasePerTenant) ListTenants(ctx context.Context) ([]string, error) {
	h, err := s.admin.handle(ctx)
	if err != nil {
		return nil, tenant.NewOpError("list", "", err)
	}
	names, err := s.ad.ListNamespaces(ctx, h, adapter.KindDatabase)
	if err != nil {
		return nil, tenant.NewOpError("list", "", err)
	}
	out := names[:0]
	for _, n := range names {
		if !reservedDatabases[n] {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *DatabasePerTenant) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return false, err
	}
	ids, err := s.ListTenants(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == sid {
			return true, nil
		}
	}
	return false, nil
}

func (s *DatabasePerTenant) Descriptor(tenantID string) (adapter.Descriptor, error) {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return adapter.Descriptor{}, err
	}
	return adapter.Descriptor{URL: adapter.ExpandTemplate(s.template, sid)}, nil
}

func (s *DatabasePerTenant) Close(ctx context.Context) error {
	return s.admin.close(ctx)
}
