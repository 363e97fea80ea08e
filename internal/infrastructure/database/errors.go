package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationMissing is returned by MigrateDown when the latest applied
	// version has no matching file in the migration set.
	ErrMigrationMissing = errors.New("database: applied migration not found")

	// ErrNoDownMigration is returned by MigrateDown when the latest
	// migration has no .down.sql counterpart.
	ErrNoDownMigration = errors.New("database: migration has no down SQL")
)
