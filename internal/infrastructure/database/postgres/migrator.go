package postgres

import (
	stderrors "errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/minegov/royalty-engine/pkg/errors"
)

// URL-based migration helpers for operational tooling. The apiserver runs
// migrations through Connection.RunMigrations on its own pool; these take a
// connection string so they work against any database, including one the
// service itself cannot reach yet.

// RunMigrations applies every pending migration. Already up to date is not
// an error.
func RunMigrations(dbURL, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to run migrations")
	}
	return nil
}

// RollbackMigration steps the schema back. Intended for development and
// incident recovery, not the normal deployment path.
func RollbackMigration(dbURL, migrationsPath string, steps int) error {
	if steps <= 0 {
		return errors.New(errors.CodeValidation, fmt.Sprintf("steps must be > 0, got %d", steps))
	}

	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return errors.New(errors.CodeValidation, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.CodeDatabaseError,
			fmt.Sprintf("failed to roll back %d step(s)", steps))
	}
	return nil
}

// MigrationStatus reports the applied version and whether a failed migration
// left the schema dirty. Version 0 means nothing has been applied.
func MigrationStatus(dbURL, migrationsPath string) (version uint, dirty bool, err error) {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return 0, false, errors.Wrap(err, errors.CodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, errors.CodeDatabaseError, "failed to get migration version")
	}
	return version, dirty, nil
}

// ResetDatabase tears the schema down and rebuilds it. Destructive; test
// databases only.
func ResetDatabase(dbURL, migrationsPath string) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Down(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to roll back all migrations")
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.CodeDatabaseError, "failed to re-apply migrations")
	}
	return nil
}

// ForceMigrationVersion overwrites the recorded schema version without
// running anything. The escape hatch for a dirty state; version -1 clears
// the record entirely.
func ForceMigrationVersion(dbURL, migrationsPath string, version int) error {
	m, err := migrate.New(migrationsPath, dbURL)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create migrate instance")
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return errors.Wrap(err, errors.CodeDatabaseError,
			fmt.Sprintf("failed to force version %d", version))
	}
	return nil
}
