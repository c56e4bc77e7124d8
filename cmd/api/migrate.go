package main

import (
	"fmt"

	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"

	"github.com/inaiurai/jobmeter/internal/migrations"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply application and River schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx, a.cfg.DatabaseURL, a.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Up(ctx, pool, a.log)
			if err != nil {
				return err
			}

			migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
			if err != nil {
				return fmt.Errorf("create river migrator: %w", err)
			}
			res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
			if err != nil {
				return fmt.Errorf("river migrate up: %w", err)
			}
			a.log.Info("River migrations applied", "versions", len(res.Versions))

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %d application migrations, %d river migrations\n", len(applied), len(res.Versions))
			return nil
		},
	}
}
