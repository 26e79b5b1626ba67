// Package sqladapter implements the relational-SQL adapter family on
// database/sql, with postgres (lib/pq) and mysql (go-sql-driver) dialects.
// Data operations compile generic filter trees into parameterized
// statements; values never appear in SQL text.
package sqladapter

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/query"
	"github.com/tenantkit/tenantkit/pkg/scope"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// Adapter is the relational-SQL driver facade, parameterized by dialect.
type Adapter struct {
	name    string
	driver  string
	dialect query.Dialect
}

var _ adapter.Adapter = (*Adapter)(nil)

// NewPostgres returns the postgres-dialect adapter (lib/pq).
func NewPostgres() *Adapter {
	return &Adapter{name: "postgres", driver: "postgres", dialect: query.DialectPostgres}
}

// NewMySQL returns the mysql-dialect adapter (go-sql-driver).
func NewMySQL() *Adapter {
	return &Adapter{name: "mysql", driver: "mysql", dialect: query.DialectMySQL}
}

func (a *Adapter) Name() string { return a.name }

// Connect opens a pooled connection for the descriptor and verifies it
// with a ping. A descriptor schema is applied pool-wide through the DSN
// (postgres search_path); mysql has no schema concept below databases.
func (a *Adapter) Connect(ctx context.Context, d adapter.Descriptor) (adapter.Handle, error) {
	dsn, err := a.buildDSN(d)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(a.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", a.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s at %s: %w", a.name, d.Redacted(), err)
	}
	return &handle{db: db, dialect: a.dialect}, nil
}

func (a *Adapter) buildDSN(d adapter.Descriptor) (string, error) {
	switch a.driver {
	case "postgres":
		u, err := url.Parse(d.URL)
		if err != nil {
			return "", fmt.Errorf("parse postgres url: %w", err)
		}
		if d.Database != "" {
			u.Path = "/" + d.Database
		}
		if d.Schema != "" {
			q := u.Query()
			q.Set("search_path", d.Schema)
			u.RawQuery = q.Encode()
		}
		return u.String(), nil
	case "mysql":
		if d.Schema != "" {
			return "", fmt.Errorf("%w: mysql has no schema namespaces", tenant.ErrNotSupported)
		}
		cfg, err := gomysql.ParseDSN(d.URL)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		if d.Database != "" {
			cfg.DBName = d.Database
		}
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("%w: unknown driver %q", tenant.ErrConfiguration, a.driver)
	}
}

func (a *Adapter) Disconnect(ctx context.Context, h adapter.Handle) error {
	return h.Close(ctx)
}

// CreateNamespace issues the dialect's DDL. Names must already be
// sanitized; anything else is rejected outright.
func (a *Adapter) CreateNamespace(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind, name string) error {
	sh, err := a.sqlHandle(h)
	if err != nil {
		return err
	}
	if !tenant.IsSanitized(name) {
		return fmt.Errorf("%w: unsanitized namespace name %q", tenant.ErrInvalidTenantID, name)
	}
	var ddl string
	switch {
	case a.driver == "postgres" && kind == adapter.KindSchema:
		ddl = "CREATE SCHEMA " + pq.QuoteIdentifier(name)
	case a.driver == "postgres" && kind == adapter.KindDatabase:
		ddl = "CREATE DATABASE " + pq.QuoteIdentifier(name)
	case a.driver == "mysql":
		// MySQL treats schema and database as synonyms.
		ddl = "CREATE DATABASE " + quoteMySQL(name)
	default:
		return fmt.Errorf("%w: namespace kind %q", tenant.ErrNotSupported, kind)
	}
	if _, err := sh.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return nil
}

// DropNamespace removes the container. Postgres schemas drop with CASCADE
// so dependent objects go with them.
func (a *Adapter) DropNamespace(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind, name string) error {
	sh, err := a.sqlHandle(h)
	if err != nil {
		return err
	}
	if !tenant.IsSanitized(name) {
		return fmt.Errorf("%w: unsanitized namespace name %q", tenant.ErrInvalidTenantID, name)
	}
	var ddl string
	switch {
	case a.driver == "postgres" && kind == adapter.KindSchema:
		ddl = "DROP SCHEMA " + pq.QuoteIdentifier(name) + " CASCADE"
	case a.driver == "postgres" && kind == adapter.KindDatabase:
		ddl = "DROP DATABASE " + pq.QuoteIdentifier(name)
	case a.driver == "mysql":
		ddl = "DROP DATABASE " + quoteMySQL(name)
	default:
		return fmt.Errorf("%w: namespace kind %q", tenant.ErrNotSupported, kind)
	}
	if _, err := sh.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("drop %s %q: %w", kind, name, err)
	}
	return nil
}

func (a *Adapter) ListNamespaces(ctx context.Context, h adapter.Handle, kind adapter.NamespaceKind) ([]string, error) {
	sh, err := a.sqlHandle(h)
	if err != nil {
		return nil, err
	}
	var q string
	switch {
	case a.driver == "postgres" && kind == adapter.KindSchema:
		q = "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name"
	case a.driver == "postgres" && kind == adapter.KindDatabase:
		q = "SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname"
	case a.driver == "mysql":
		q = "SELECT schema_name FROM information_schema.schemata ORDER BY schema_name"
	default:
		return nil, fmt.Errorf("%w: namespace kind %q", tenant.ErrNotSupported, kind)
	}
	rows, err := sh.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s namespaces: %w", kind, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan namespace name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (a *Adapter) WrapForTenant(h adapter.Handle, tenantID string) adapter.Handle {
	return scope.Wrap(h, tenantID, "")
}

func (a *Adapter) sqlHandle(h adapter.Handle) (*handle, error) {
	if s, ok := h.(*scope.Handle); ok {
		h = s.Unwrap()
	}
	sh, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("%w: handle is not a %s handle", tenant.ErrNotSupported, a.name)
	}
	return sh, nil
}

func quoteMySQL(name string) string {
	return "`" + name + "`"
}
