package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tenantkit/tenantkit/pkg/strategy"
)

var (
	createTemplate string
	createMigrate  bool
)

var createCmd = &cobra.Command{
	Use:   "create TENANT",
	Short: "Provision a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		opts := strategy.CreateOptions{
			Template:      createTemplate,
			RunMigrations: createMigrate,
		}
		if err := r.CreateTenant(cmd.Context(), args[0], opts); err != nil {
			return fmt.Errorf("create tenant %s: %w", args[0], err)
		}
		fmt.Printf("Tenant %q created\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete TENANT",
	Short: "Delete a tenant and its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		if err := r.DeleteTenant(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete tenant %s: %w", args[0], err)
		}
		fmt.Printf("Tenant %q deleted\n", args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List provisioned tenants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		ids, err := r.ListTenants(cmd.Context())
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		if outputFmt == "json" {
			return printJSON(map[string]any{"tenants": ids})
		}
		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, []string{id})
		}
		printTable([]string{"Tenant"}, rows)
		return nil
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists TENANT",
	Short: "Check whether a tenant is provisioned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		ok, err := r.TenantExists(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("check tenant %s: %w", args[0], err)
		}
		if outputFmt == "json" {
			return printJSON(map[string]any{"tenant": args[0], "exists": ok})
		}
		fmt.Println(ok)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate TENANT",
	Short: "Run pending migrations for a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		if err := r.MigrateTenant(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("migrate tenant %s: %w", args[0], err)
		}
		fmt.Printf("Tenant %q migrated\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registry connection statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		r, err := openRegistry()
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		st := r.Stats()
		if outputFmt == "json" {
			return printJSON(st)
		}
		printTable(
			[]string{"Strategy", "Adapter", "Cached", "Total Connects"},
			[][]string{{st.Strategy, st.Adapter,
				fmt.Sprintf("%d", st.CachedConnections),
				fmt.Sprintf("%d", st.TotalConnections)}},
		)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createTemplate, "from-template", "", "Template namespace to clone table structures from")
	createCmd.Flags().BoolVar(&createMigrate, "migrate", false, "Run migrations after provisioning")
}
