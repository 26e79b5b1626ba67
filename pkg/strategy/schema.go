package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/query"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// reservedSchemas are system namespaces that never belong to a tenant.
var reservedSchemas = map[string]bool{
	"public":             true,
	"information_schema": true,
	"pg_catalog":         true,
	"pg_toast":           true,
}

// SchemaPerTenant isolates tenants by a schema per tenant inside one shared
// database. Only valid on adapter families with schema namespaces.
type SchemaPerTenant struct {
	ad    adapter.Adapter
	base  adapter.Descriptor
	admin *adminConn
}

// NewSchemaPerTenant builds the schema-per-tenant strategy over the shared
// database described by base.
func NewSchemaPerTenant(ad adapter.Adapter, base adapter.Descriptor) *SchemaPerTenant {
	return &SchemaPerTenant{ad: ad, base: base, admin: newAdminConn(ad, base)}
}

func (s *SchemaPerTenant) Name() string { return "schema" }

func (s *SchemaPerTenant) GetConnection(ctx context.Context, tenantID string) (adapter.Handle, error) {
	d, err := s.Descriptor(tenantID)
	if err != nil {
		return nil, err
	}
	h, err := s.ad.Connect(ctx, d)
	if err != nil {
		return nil, tenant.NewOpError("connect", d.Schema, err)
	}
	return h, nil
}

// CreateTenant creates the tenant's schema. With a template set, table
// structures are cloned from the template schema: CREATE TABLE (LIKE ...
// INCLUDING ALL) copies columns, defaults, indexes and constraints but no
// rows.
func (s *SchemaPerTenant) CreateTenant(ctx context.Context, tenantID string, opts CreateOptions) error {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return err
	}
	if reservedSchemas[sid] {
		return fmt.Errorf("%w: %q is a reserved schema name", tenant.ErrInvalidTenantID, sid)
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
	if err := s.ad.CreateNamespace(ctx, h, adapter.KindSchema, sid); err != nil {
		return tenant.NewOpError("create", sid, err)
	}
	if opts.Template != "" {
		if err := s.cloneTemplate(ctx, h, sid, opts.Template); err != nil {
			return tenant.NewOpError("create", sid, err)
		}
	}
	return nil
}

// cloneTemplate copies every table structure in the template schema into
// the new tenant schema.
func (s *SchemaPerTenant) cloneTemplate(ctx context.Context, h adapter.Handle, sid, template string) error {
	if !tenant.IsSanitized(template) {
		return fmt.Errorf("%w: template schema %q is not a sanitized name", tenant.ErrInvalidTenantID, template)
	}
	tables, err := h.Find(ctx, "information_schema.tables", query.Eq("table_schema", template))
	if err != nil {
		return fmt.Errorf("list template tables: %w", err)
	}
	for _, row := range tables {
		name, _ := row["table_name"].(string)
		if !query.ValidIdent(name) {
			return fmt.Errorf("template table %q has an unsafe name", name)
		}
		stmt := fmt.Sprintf(`CREATE TABLE %q.%q (LIKE %q.%q INCLUDING ALL)`,
			sid, name, template, name)
		if err := h.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clone table %s: %w", name, err)
		}
	}
	return nil
}

// DeleteTenant drops the tenant's schema and everything in it.
func (s *SchemaPerTenant) DeleteTenant(ctx context.Context, tenantID string) error {
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
	if err := s.ad.DropNamespace(ctx, h, adapter.KindSchema, sid); err != nil {
		return tenant.NewOpError("delete", sid, err)
	}
	return nil
}

func (s *SchemaPerTenant) ListTenants(ctx context.Context) ([]string, error) {
	h, err := s.admin.handle(ctx)
	if err != nil {
		return nil, tenant.NewOpError("list", "", err)
	}
	names, err := s.ad.ListNamespaces(ctx, h, adapter.KindSchema)
	if err != nil {
		return nil, tenant.NewOpError("list", "", err)
	}
	out := names[:0]
	for _, n := range names {
		if !reservedSchemas[n] {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *SchemaPerTenant) TenantExists(ctx context.Context, tenantID string) (bool, error) {
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

func (s *SchemaPerTenant) Descriptor(tenantID string) (adapter.Descriptor, error) {
	sid, err := tenant.Sanitize(tenantID)
	if err != nil {
		return adapter.Descriptor{}, err
	}
	return s.base.WithSchema(sid), nil
}

func (s *SchemaPerTenant) Close(ctx context.Context) error {
	return s.admin.close(ctx)
}
