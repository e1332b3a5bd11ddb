package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/eures-crawler/internal/config"
)

// newSchemaCmd creates the 'schema' subcommand.
func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Creates the jobs table in the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := resolveEnv(ctx)
			if err != nil {
				return err
			}
			cfg := e.cfg
			cfg.Archive.Backend = config.BackendNone
			cfg.PubSub.Enabled = false

			// New ensures the schema of SQL backends while it opens them.
			a, err := newApp(ctx, cfg, e.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer a.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", cfg.Storage.Backend)
			return nil
		},
	}
}
