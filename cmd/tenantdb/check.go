package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantdb/pkg/pg"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

var ErrCheckFailed = errors.New("one or more tenants failed the check")

func newCheckCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate tenant records and try each tenant's connection without serving",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			records, err := a.store.ListActive(ctx)
			if err != nil {
				return err
			}

			failed := false
			if _, err := tenant.ValidateDefaults(records); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "defaults: %v\n", err)
				failed = true
			}

			factory := pg.NewFactory(a.cfg.PG, pg.WithFactoryLogger(a.log))
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT\tKIND\tRESULT")
			for _, rec := range records {
				result := "ok"
				if err := a.checkTenant(ctx, factory, rec, timeout); err != nil {
					result = err.Error()
					failed = true
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, rec.Kind, result)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if failed {
				return ErrCheckFailed
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per-tenant connect timeout")
	return cmd
}

// checkTenant opens and pings a throwaway pool. Pre-registered tenants borrow
// a connection from the embedding application and cannot be checked here.
func (a *app) checkTenant(ctx context.Context, factory *pg.Factory, rec tenant.Record, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := rec.Conn
	switch rec.Kind {
	case tenant.KindPreRegistered:
		return nil
	case tenant.KindDirectory:
		if a.dir == nil {
			return errors.New("no directory configured")
		}
		p, err := a.dir.Lookup(ctx, rec.Name)
		if err != nil {
			return err
		}
		params = p
	}

	pool, err := factory.Open(ctx, "check-"+rec.ID, params)
	if err != nil {
		return err
	}
	defer pool.Close()
	return pool.Ping(ctx)
}
