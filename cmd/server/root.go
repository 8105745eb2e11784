package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/config"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "unyx",
		Short:         "UnyX Social marketplace service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml or ./config/config.yaml)")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadFile(cfgFile)
		if err != nil {
			return nil, err
		}
		if err := logger.Init(cfg.Log); err != nil {
			return nil, err
		}
		logger.Debug("config loaded", zap.String("db_driver", cfg.Database.Driver), zap.String("feed", cfg.Messaging.Feed))
		return cfg, nil
	}

	root.AddCommand(newServeCmd(load), newMigrateCmd(load))
	return root
}
