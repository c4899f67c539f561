package main

import (
	"fmt"

	"github.com/harunnryd/autosend/internal/repository/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := postgres.Open(commandContext(cmd), loadedCfg.Store)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(commandContext(cmd), db); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "✓ Schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
