package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/inaiurai/jobmeter/internal/config"
)

// app is filled in by the root command before any subcommand runs.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "jobmeter",
		Short:         "Job orchestration and usage metering service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			// Server logs go to stdout; CLI commands keep stdout for their output.
			var out io.Writer = cmd.ErrOrStderr()
			if cmd.Name() == "serve" {
				out = os.Stdout
			}
			a.log = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(a.log)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, json or toml)")

	rootCmd.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSeedPoliciesCmd(a),
		newAccountCmd(a),
		newTokenCmd(a),
	)
	return rootCmd
}

func openPool(ctx context.Context, url string, log *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot reach PostgreSQL (is it running?): %w", err)
	}
	log.Info("Connected to PostgreSQL database successfully!")
	return pool, nil
}
