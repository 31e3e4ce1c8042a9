package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NithishSaravananRss/valentine-proposal-app/db"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer database.Close()

		if cfg.MigrationsDir != "" {
			err = store.ApplyMigrations(ctx, database, cfg.MigrationsDir)
		} else {
			err = store.ApplyMigrationsFS(ctx, database, db.Migrations, "migrations")
		}
		if err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info("migrations applied", zap.String("dir", cfg.MigrationsDir))
		return nil
	},
}
