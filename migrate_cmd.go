package main

import (
	"github.com/spf13/cobra"

	"github.com/acme-retail/tablesync/internal/repository"
)

// newMigrateCmd applies pending document-store migrations and exits,
// for operational use ahead of a rollout without starting the full server.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending document store migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}

			logger := buildLogger(cfg)

			store, err := repository.Open(cmd.Context(), cfg.DocumentStoreURI, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			logger.Info("migrations applied", "uri", cfg.DocumentStoreURI)

			return nil
		},
	}
}
