package main

import (
	"github.com/spf13/cobra"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/pkg/database"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg.Database.AutoMigrate = false
			db, err := database.InitDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)
			if err := database.Migrate(db); err != nil {
				return err
			}
			logger.Info("schema migrated")
			return nil
		},
	}
}
