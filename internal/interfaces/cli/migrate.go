package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minegov/royalty-engine/internal/infrastructure/database/postgres"
)

// NewMigrateCmd groups the schema migration subcommands. Unlike the rest of
// the tool these talk to Postgres directly rather than through the API, so
// they work before the server is up.
func NewMigrateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "",
		"migrations directory (default: database.migration_path from config)")

	cmd.AddCommand(
		newMigrateUpCmd(&path),
		newMigrateDownCmd(&path),
		newMigrateStatusCmd(&path),
		newMigrateForceCmd(&path),
	)
	return cmd
}

// migrateTarget resolves the database URL and migrations path from config
// and the --path override.
func migrateTarget(cmd *cobra.Command, path *string) (dbURL, migrationsPath string, err error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return "", "", err
	}

	migrationsPath = *path
	if migrationsPath == "" {
		migrationsPath = cliCtx.Config.Database.MigrationPath
	}
	if migrationsPath == "" {
		return "", "", fmt.Errorf("no migrations path: set --path or database.migration_path")
	}
	return postgres.BuildDSN(cliCtx.Config.Database), migrationsPath, nil
}

func newMigrateUpCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, migrationsPath, err := migrateTarget(cmd, path)
			if err != nil {
				return err
			}
			if err := postgres.RunMigrations(dbURL, migrationsPath); err != nil {
				return err
			}
			PrintSuccess(cmd, "migrations applied")
			return nil
		},
	}
}

func newMigrateDownCmd(path *string) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, migrationsPath, err := migrateTarget(cmd, path)
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigration(dbURL, migrationsPath, steps); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("rolled back %d step(s)", steps))
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateStatusCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, migrationsPath, err := migrateTarget(cmd, path)
			if err != nil {
				return err
			}
			version, dirty, err := postgres.MigrationStatus(dbURL, migrationsPath)
			if err != nil {
				return err
			}
			return PrintResult(cmd, map[string]interface{}{
				"version": version,
				"dirty":   dirty,
			})
		},
	}
}

func newMigrateForceCmd(path *string) *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Overwrite the recorded schema version without running migrations",
		Long: "Overwrite the recorded schema version without running anything.\n" +
			"Use this to recover from a dirty state after a failed migration.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var version int
			if _, err := fmt.Sscanf(args[0], "%d", &version); err != nil {
				return fmt.Errorf("VERSION must be an integer, got %q", args[0])
			}

			dbURL, migrationsPath, err := migrateTarget(cmd, path)
			if err != nil {
				return err
			}
			if err := postgres.ForceMigrationVersion(dbURL, migrationsPath, version); err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("schema version forced to %d", version))
			return nil
		},
	}
}
