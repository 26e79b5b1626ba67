package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/tenantkit/tenantkit/pkg/registry"
)

var (
	strategyFlag    string
	adapterFlag     string
	urlFlag         string
	tenantFieldFlag string
	collectionsFlag string
	templateFlag    string
	migrationsFlag  string
	outputFmt       string
)

var rootCmd = &cobra.Command{
	Use:   "tenantctl",
	Short: "CLI for tenant lifecycle management",
	Long: `tenantctl manages tenants of a multi-tenant data backend: it provisions
and removes tenant namespaces, runs per-tenant migrations, and inspects
connection state.

Configuration comes from TENANTKIT_* environment variables; flags
override the environment.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&strategyFlag, "strategy", "", "Isolation strategy: row-level, schema, database (default: TENANTKIT_STRATEGY)")
	pf.StringVar(&adapterFlag, "adapter", "", "Backend adapter: postgres, mysql, gorm-postgres, gorm-mysql, mongo (default: TENANTKIT_ADAPTER)")
	pf.StringVar(&urlFlag, "url", "", "Backend connection URL; {tenant} placeholder under the database strategy (default: TENANTKIT_URL)")
	pf.StringVar(&tenantFieldFlag, "tenant-field", "", "Discriminator column for row-level isolation (default: tenant_id)")
	pf.StringVar(&collectionsFlag, "collections", "", "Comma-separated tables tracked by row-level isolation")
	pf.StringVar(&templateFlag, "template", "", "Default template namespace cloned on create (schema strategy)")
	pf.StringVar(&migrationsFlag, "migrations", "", "Directory of golang-migrate files (default: TENANTKIT_MIGRATIONS_PATH)")
	pf.StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statsCmd)
}

// resolvedConfig merges environment configuration with flag overrides.
func resolvedConfig() registry.Config {
	cfg := registry.ConfigFromEnv()
	if strategyFlag != "" {
		cfg.Strategy = strategyFlag
	}
	if adapterFlag != "" {
		cfg.Adapter = adapterFlag
	}
	if urlFlag != "" {
		cfg.URL = urlFlag
	}
	if tenantFieldFlag != "" {
		cfg.TenantField = tenantFieldFlag
	}
	if collectionsFlag != "" {
		cfg.Collections = nil
		for _, c := range strings.Split(collectionsFlag, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.Collections = append(cfg.Collections, c)
			}
		}
	}
	if templateFlag != "" {
		cfg.Template = templateFlag
	}
	if migrationsFlag != "" {
		cfg.MigrationsPath = migrationsFlag
	}
	return cfg
}

func openRegistry() (*registry.Registry, error) {
	return registry.New(resolvedConfig())
}
