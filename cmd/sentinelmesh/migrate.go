package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinelmesh/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.Driver != "postgres" {
			return fmt.Errorf("migrate needs the postgres driver, got %q", cfg.Database.Driver)
		}
		if err := db.RunMigrations(cfg.Database.DSN); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
