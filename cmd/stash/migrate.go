package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/stash/pkg/db"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres cache migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := db.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = db.Shutdown(pool)(ctx) }()

			if err := db.MigrateCache(ctx, pool, cfg.Database.MigrationsTable, log); err != nil {
				return err
			}
			log.Info("cache migrations applied")
			return nil
		},
	}
}
