package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3tcapital/facturador/internal/infrastructure/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	_, log, pool, err := loadBase(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("Migrations applied")
	return nil
}
