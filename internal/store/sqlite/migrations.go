package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the user_version after all migrations have run.
const ExpectedSchemaVersion = 2

// Migration is one forward-only schema change.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Key-value table for jobs, sessions and status",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS kv (
					bucket     TEXT NOT NULL,
					key        TEXT NOT NULL,
					value      BLOB NOT NULL,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (bucket, key)
				)`)
			return err
		},
	},
	{
		Version:     2,
		Description: "Index for bucket scans ordered by update time",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_kv_bucket_updated ON kv(bucket, updated_at)`)
			return err
		},
	},
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("applied state migration", "version", m.Version, "description", m.Description)
	}

	var final int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&final); err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("state schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}
