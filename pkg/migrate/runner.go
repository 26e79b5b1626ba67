// Package migrate supplies the migration runner contract the registry
// delegates to, a golang-migrate backed implementation, and a lock that
// serializes concurrent migration runs for one tenant.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	gomigrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// Runner applies schema migrations against the backend a descriptor
// points at. The registry supplies a correctly scoped descriptor per
// tenant; everything else is the runner's business.
type Runner interface {
	RunMigrations(ctx context.Context, d adapter.Descriptor) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, d adapter.Descriptor) error

func (f RunnerFunc) RunMigrations(ctx context.Context, d adapter.Descriptor) error {
	return f(ctx, d)
}

// GolangMigrateRunner runs file-based migrations through golang-migrate.
type GolangMigrateRunner struct {
	sourceURL string
}

// NewGolangMigrateRunner builds a runner over a local migrations
// directory. dir may be a plain path or already carry a source scheme.
func NewGolangMigrateRunner(dir string) *GolangMigrateRunner {
	if !strings.Contains(dir, "://") {
		dir = "file://" + dir
	}
	return &GolangMigrateRunner{sourceURL: dir}
}

// RunMigrations applies all pending up migrations. A database with
// nothing to apply is success.
func (r *GolangMigrateRunner) RunMigrations(ctx context.Context, d adapter.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := targetURL(d)
	if err != nil {
		return err
	}
	m, err := gomigrate.New(r.sourceURL, target)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, gomigrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// targetURL folds the descriptor's database and schema overrides into its
// URL. Schema selection rides the search_path query parameter, which both
// lib/pq and golang-migrate's postgres driver honor. Scheme-less mysql
// DSNs (user:pass@tcp(host)/db) are converted to the mysql:// URL form
// golang-migrate's driver resolution requires.
func targetURL(d adapter.Descriptor) (string, error) {
	if !strings.Contains(d.URL, "://") {
		cfg, err := gomysql.ParseDSN(d.URL)
		if err != nil {
			return "", fmt.Errorf("parse descriptor DSN: %w", err)
		}
		if d.Schema != "" {
			return "", fmt.Errorf("%w: mysql has no schema namespaces", tenant.ErrNotSupported)
		}
		if d.Database != "" {
			cfg.DBName = d.Database
		}
		return "mysql://" + cfg.FormatDSN(), nil
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return "", fmt.Errorf("parse descriptor URL: %w", err)
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
}
