package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create tours table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS tours (
						id           TEXT PRIMARY KEY,
						natural_key  TEXT NOT NULL UNIQUE,
						device_id    TEXT NOT NULL,
						start_unix   INTEGER NOT NULL,
						duration_s   INTEGER NOT NULL,
						distance_m   REAL NOT NULL,
						title        TEXT NOT NULL DEFAULT '',
						source_file  TEXT NOT NULL DEFAULT '',
						tour_type_id TEXT NOT NULL DEFAULT '',
						fingerprint  TEXT NOT NULL,
						imported_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_tours_device ON tours(device_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "index tours by start",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_tours_start ON tours(start_unix)`)
				return err
			},
		},
	}
}

// Migrate applies the migrations that are not recorded yet, in order.
func (s *SQLiteStore) Migrate(ctx context.Context, steps []Migration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	for _, m := range steps {
		var count int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version,
		).Scan(&count); err != nil {
			return errors.Wrapf(err, "check migration %d", m.Version)
		}
		if count > 0 {
			continue
		}
		err := s.tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
				m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "migration %d (%s)", m.Version, m.Description)
		}
		s.log.Debugf("applied migration %d: %s", m.Version, m.Description)
	}
	return nil
}
