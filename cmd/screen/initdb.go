package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"screen/internal/config"
	"screen/internal/records"
)

func newInitDBCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create or migrate the record database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd, flagString(cmd, "db-file", config.WithDBFile)...)
			if err != nil {
				return err
			}

			store, err := records.Open(cmd.Context(), cfg.DBFile)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			if err := store.Close(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Loaded database schema into", cfg.DBFile)
			return nil
		},
	}

	cmd.Flags().String("db-file", "", "SQLite database file")

	return cmd
}
