package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantdb/pkg/store/pgstore"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the tenants and tenant_relations tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if a.pgPool == nil {
				return ErrNotPostgres
			}
			return pgstore.Migrate(ctx, a.pgPool, a.cfg.PG, a.log)
		},
	}
}
