package database

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// SchemaVersion represents the current database schema version
const SchemaVersion = 2

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Schema contains all database migrations
var Schema = []Migration{
	{
		Version:     1,
		Description: "Queue submission journal",
		Up: `
		-- Schema version tracking
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		-- One row per PlayTrackIds call
		CREATE TABLE IF NOT EXISTS queue_submissions (
			id TEXT PRIMARY KEY,
			track_ids TEXT NOT NULL,
			track_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN ('playing', 'failed')),
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_queue_submissions_created_at ON queue_submissions(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_queue_submissions_status ON queue_submissions(status);

		INSERT INTO schema_migrations (version, description) VALUES (1, 'Queue submission journal');
		`,
		Down: `
		DROP INDEX IF EXISTS idx_queue_submissions_status;
		DROP INDEX IF EXISTS idx_queue_submissions_created_at;
		DROP TABLE IF EXISTS queue_submissions;
		`,
	},
	{
		Version:     2,
		Description: "Per-track rows for queue submissions",
		Up: `
		CREATE TABLE IF NOT EXISTS queue_tracks (
			submission_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			track_id TEXT NOT NULL,
			PRIMARY KEY (submission_id, position),
			FOREIGN KEY (submission_id) REFERENCES queue_submissions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_queue_tracks_track_id ON queue_tracks(track_id);

		INSERT INTO schema_migrations (version, description) VALUES (2, 'Per-track rows for queue submissions');
		`,
		Down: `
		DROP INDEX IF EXISTS idx_queue_tracks_track_id;
		DROP TABLE IF EXISTS queue_tracks;
		`,
	},
}

// InitSchema initializes the database schema
func InitSchema(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// Check current schema version
	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		// Table doesn't exist yet
		currentVersion = 0
	}

	// Apply migrations
	for _, migration := range Schema {
		if migration.Version > currentVersion {
			logger.Info("Applying migration", zap.Int("version", migration.Version), zap.String("description", migration.Description))

			tx, err := db.Begin()
			if err != nil {
				return fmt.Errorf("failed to begin transaction: %w", err)
			}

			if _, err := tx.Exec(migration.Up); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
			}

			logger.Info("Successfully applied migration", zap.Int("version", migration.Version))
		}
	}

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// MigrateUp applies all pending migrations
func MigrateUp(db *sql.DB, logger *zap.Logger) error {
	return InitSchema(db, logger)
}

// MigrateDown rolls back to a specific version
func MigrateDown(db *sql.DB, targetVersion int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}

	if targetVersion < 0 || targetVersion >= currentVersion {
		return fmt.Errorf("target version %d must be between 0 and current version %d", targetVersion, currentVersion)
	}

	// Apply down migrations in reverse order
	for i := len(Schema) - 1; i >= 0; i-- {
		migration := Schema[i]
		if migration.Version > targetVersion && migration.Version <= currentVersion {
			logger.Info("Rolling back migration", zap.Int("version", migration.Version), zap.String("description", migration.Description))

			tx, err := db.Begin()
			if err != nil {
				return fmt.Errorf("failed to begin transaction: %w", err)
			}

			if _, err := tx.Exec(migration.Down); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
			}

			// Remove from schema_migrations
			if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", migration.Version); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to update schema_migrations: %w", err)
			}

			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit rollback %d: %w", migration.Version, err)
			}

			logger.Info("Successfully rolled back migration", zap.Int("version", migration.Version))
		}
	}

	return nil
}
