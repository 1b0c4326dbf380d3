package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fiszki/internal/store/postgres"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the generation tables in the configured Postgres database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("migrate requires postgres.dsn to be configured")
			}

			ctx := cmd.Context()
			store, err := postgres.Open(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
}
