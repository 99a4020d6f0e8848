package main

import (
	"oauth-connect/internal/config"
	"oauth-connect/internal/db"
	"oauth-connect/internal/logger"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel})
			defer logger.Sync()

			database, err := db.Open(cmd.Context(), cfg.DatabaseDSN)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.Migrate(cmd.Context(), database.DB); err != nil {
				return err
			}

			logger.Info("schema up to date", nil)
			return nil
		},
	}
}
