package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inaiurai/jobmeter/internal/policy"
	"github.com/inaiurai/jobmeter/internal/repository"
)

func newSeedPoliciesCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-policies",
		Short: "Upsert feature policies from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			policies, err := policy.LoadFile(file, a.log)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, a.cfg.DatabaseURL, a.log)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.NewPolicyRepo(pool).UpsertAll(ctx, policies); err != nil {
				return fmt.Errorf("upsert policies: %w", err)
			}
			for _, p := range policies {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tenabled=%t\tcost=%s\n", p.FlagName, p.IsEnabled, p.EffectiveCost())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "policy YAML file")
	return cmd
}
