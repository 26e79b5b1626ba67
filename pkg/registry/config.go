package registry

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tenantkit/tenantkit/pkg/adapter"
	"github.com/tenantkit/tenantkit/pkg/cache"
	"github.com/tenantkit/tenantkit/pkg/migrate"
	"github.com/tenantkit/tenantkit/pkg/tenant"
)

// Strategy kinds accepted by Config.Strategy.
const (
	StrategyRowLevel = "row-level"
	StrategySchema   = "schema"
	StrategyDatabase = "database"
)

// Adapter kinds accepted by Config.Adapter.
const (
	AdapterPostgres     = "postgres"
	AdapterMySQL        = "mysql"
	AdapterGormPostgres = "gorm-postgres"
	AdapterGormMySQL    = "gorm-mysql"
	AdapterMongo        = "mongo"
)

// Config wires a Registry. Strategy and Adapter select closed variants;
// the pair is resolved once at construction, never per call.
type Config struct {
	// Strategy is the isolation model kind.
	Strategy string

	// Adapter is the backend family kind.
	Adapter string

	// URL is the backend connection string. Under the database strategy
	// it is a template containing the {tenant} placeholder.
	URL string

	// TenantField is the discriminator column for row-level isolation.
	// Defaults to "tenant_id".
	TenantField string

	// Collections are the tables carrying the tenant field, for
	// row-level deletion and discovery.
	Collections []string

	// Template is the default template namespace cloned on createTenant
	// under the schema strategy, when the call passes none.
	Template string

	// MigrationsPath is a directory of golang-migrate files. Empty
	// disables migrateTenant unless a Runner is injected.
	MigrationsPath string

	// Runner overrides the golang-migrate runner built from
	// MigrationsPath. Lets callers plug their own migration tooling.
	Runner migrate.Runner

	// Backend overrides the adapter resolved from the Adapter kind.
	// Used by tests and by callers with hand-built adapters.
	Backend adapter.Adapter

	// Cache configures the tenant connection cache.
	Cache cache.Config

	// Logger receives lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config from TENANTKIT_* environment variables,
// starting from defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		Strategy: StrategyRowLevel,
		Adapter:  AdapterPostgres,
		Cache:    cache.ConfigFromEnv(),
	}
	if v := os.Getenv("TENANTKIT_STRATEGY"); v != "" {
		cfg.Strategy = v
	}
	if v := os.Getenv("TENANTKIT_ADAPTER"); v != "" {
		cfg.Adapter = v
	}
	if v := os.Getenv("TENANTKIT_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("TENANTKIT_TENANT_FIELD"); v != "" {
		cfg.TenantField = v
	}
	if v := os.Getenv("TENANTKIT_COLLECTIONS"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.Collections = append(cfg.Collections, c)
			}
		}
	}
	if v := os.Getenv("TENANTKIT_TEMPLATE"); v != "" {
		cfg.Template = v
	}
	if v := os.Getenv("TENANTKIT_MIGRATIONS_PATH"); v != "" {
		cfg.MigrationsPath = v
	}
	return cfg
}

// Validate rejects unknown kinds and strategy/adapter pairs that cannot
// work, so misconfiguration fails at startup instead of on first use.
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategyRowLevel, StrategySchema, StrategyDatabase:
	default:
		return fmt.Errorf("%w: unknown strategy %q", tenant.ErrConfiguration, c.Strategy)
	}
	if c.Backend == nil {
		switch c.Adapter {
		case AdapterPostgres, AdapterMySQL, AdapterGormPostgres, AdapterGormMySQL, AdapterMongo:
		default:
			return fmt.Errorf("%w: unknown adapter %q", tenant.ErrConfiguration, c.Adapter)
		}
	}
	if c.URL == "" {
		return fmt.Errorf("%w: URL is required", tenant.ErrConfiguration)
	}
	if c.Strategy == StrategySchema {
		switch c.Adapter {
		case AdapterMySQL, AdapterGormMySQL, AdapterMongo:
			return fmt.Errorf("%w: schema isolation is unavailable on the %s adapter",
				tenant.ErrConfiguration, c.Adapter)
		}
	}
	if c.Strategy == StrategyDatabase && !strings.Contains(c.URL, adapter.TenantPlaceholder) {
		return fmt.Errorf("%w: database strategy URL must contain %s",
			tenant.ErrConfiguration, adapter.TenantPlaceholder)
	}
	if c.Strategy == StrategyRowLevel && len(c.Collections) == 0 {
		return fmt.Errorf("%w: row-level strategy needs at least one tracked collection",
			tenant.ErrConfiguration)
	}
	return nil
}
