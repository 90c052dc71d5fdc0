package main

import (
	"strings"

	"github.com/mohammad-safakhou/adaptwatch/internal/failure"
	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
	"github.com/spf13/cobra"
)

func migrateCMD(a *app) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run label mirror database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := a.cfg.Storage.Postgres.URL
			if dsn == "" {
				return failure.Missing("storage.postgres.url (DATABASE_URL)")
			}
			if migDir == "" {
				migDir = a.cfg.Storage.Postgres.MigrationsDir
			}
			if !strings.Contains(migDir, "://") {
				migDir = "file://" + migDir
			}
			if err := labels.Migrate(migDir, dsn, direction, steps); err != nil {
				return failure.Transient("migrate", err)
			}
			a.logger.Info("migrations applied")
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source (default storage.postgres.migrations_dir)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
