package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/config"
	"github.com/sells-group/decision-curator/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, "migrate", func(context.Context, store.Store) error {
			zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
			return nil
		})
	},
}

var configInitFlags struct {
	out   string
	force bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.WriteDefaults(configInitFlags.out, configInitFlags.force); err != nil {
			return err
		}
		zap.L().Info("config written", zap.String("path", configInitFlags.out))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitFlags.out, "out", "config.yaml", "destination path")
	configInitCmd.Flags().BoolVar(&configInitFlags.force, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
}
