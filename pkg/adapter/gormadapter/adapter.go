// Package gormadapter implements the ORM adapter family on gorm. Records
// stay generic field maps (gorm's map API), so the same filter trees and
// tenant middleware apply as on the plain SQL family. The dialector is
// injectable, which lets tests run against the pure-Go sqlite driver.
package gormadapter

import (
	"context"
	"fmt"
	"net/url"

	gomysql "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/query"
	"github.com/tenantkit/tenantkit/pkg/scope"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// Opener builds a gorm dialector for a descriptor.
type Opener func(d adapter.Descriptor) (gorm.Dialector, error)

// Adapter is the ORM-family driver facade.
type Adapter struct {
	name    string
	dialect query.Dialect
	opener  Opener
}

var _ adapter.Adapter = (*Adapter)(nil)

// New returns an adapter with a custom dialector opener. The dialect
// selects placeholder style for compiled filters.
func New(name string, dialect query.Dialect, opener Opener) *Adapter {
	return &Adapter{name: name, dialect: dialect, opener: opener}
}

// NewPostgres returns the gorm adapter over the postgres dialector.
func NewPostgres() *Adapter {
	return New("gorm", query.DialectPostgres, func(d adapter.Descriptor) (gorm.Dialector, error) {
		u, err := url.Parse(d.URL)
		if err != nil {
			return nil, fmt.Errorf("parse postgres url: %w", err)
		}
		if d.Database != "" {
			u.Path = "/" + d.Database
		}
		if d.Schema != "" {
			q := u.Query()
			q.Set("search_path", d.Schema)
			u.RawQuery = q.Encode()
		}
		return gormpostgres.Open(u.String()), nil
	})
}

// NewMySQL returns the gorm adapter over the mysql dialector.
func NewMySQL() *Adapter {
	return New("gorm", query.DialectMySQL, func(d adapter.Descriptor) (gorm.Dialector, error) {
		if d.Schema != "" {
			return nil, fmt.Errorf("%w: mysql has no schema namespaces", tenant.ErrNotSupported)
		}
		cfg, err := gomysql.ParseDSN(d.URL)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		if d.Database != "" {
			cfg.DBName = d.Database
		}
		return gormmysql.Open(cfg.FormatDSN()), nil
	})
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Connect(ctx context.Context, d adapter.Descriptor) (adapter.Handle, error) {
	dialector, err := a.opener(d)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm connection to %s: %w", d.Redacted(), err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap gorm pool: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Redacted(), err)
	}
	return &handle{db: db, dialect: a.dialect}, nil
}

func (a *Adapter) Disconnect(ctx context.Context, h adapter.Handle) error {
	return h.Close(ctx)
}

func (a *Adapter) CreateNamespace(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind, name string) error {
	gh, err := a.gormHandle(h)
	if err != nil {
		return err
	}
	ddl, err := namespaceDDL("CREATE", a.dialect, kind, name)
	if err != nil {
		return err
	}
	if err := gh.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return nil
}

func (a *Adapter) DropNamespace(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind, name string) error {
	gh, err := a.gormHandle(h)
	if err != nil {
		return err
	}
	ddl, err := namespaceDDL("DROP", a.dialect, kind, name)
	if err != nil {
		return err
	}
	if err := gh.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("drop %s %q: %w", kind, name, err)
	}
	return nil
}

func (a *Adapter) ListNamespaces(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind) ([]string, error) {
	gh, err := a.gormHandle(h)
	if err != nil {
		return nil, err
	}
	var q string
	switch {
	case a.dialect == query.DialectPostgres && kind == adapter.KindSchema:
		q = "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name"
	case a.dialect == query.DialectPostgres && kind == adapter.KindDatabase:
		q = "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname"
	case a.dialect == query.DialectMySQL:
		q = "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name"
	default:
		return nil, fmt.Errorf("%w: namespace kind %q", tenant.ErrNotSupported, kind)
	}
	var names []string
	if err := gh.db.WithContext(ctx).Raw(q).Scan(&names).Error; err != nil {
		return nil, fmt.Errorf("list %s namespaces: %w", kind, err)
	}
	return names, nil
}

func (a *Adapter) WrapForTenant(h adapter.Handle, tenantID string) adapter.Handle {
	return scope.Wrap(h, tenantID, "")
}

func (a *Adapter) gormHandle(h adapter.Handle) (*handle, error) {
	if s, ok := h.(*scope.Handle); ok {
		h = s.Unwrap()
	}
	gh, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("%w: handle is not a gorm handle", tenant.ErrNotSupported)
	}
	return gh, nil
}

func namespaceDDL(verb string, d query.Dialect, kind adapter.NamespaceKind, name string) (string, error) {
	if !tenant.IsSanitized(name) {
		return "", fmt.Errorf("%w: unsanitized namespace name %q", tenant.ErrInvalidTenantID, name)
	}
	switch {
	case d == query.DialectPostgres && kind == adapter.KindSchema:
		if verb == "DROP" {
			return fmt.Sprintf(`DROP SCHEMA %q CASCADE`, name), nil
		}
		return fmt.Sprintf(`CREATE SCHEMA %q`, name), nil
	case d == query.DialectPostgres && kind == adapter.KindDatabase:
		return fmt.Sprintf(`%s DATABASE %q`, verb, name), nil
	case d == query.DialectMySQL:
		return fmt.Sprintf("%s DATABASE `%s`", verb, name), nil
	default:
		return "", fmt.Errorf("%w: namespace kind %q", tenant.ErrNotSupported, kind)
	}
}
