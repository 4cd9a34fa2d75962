package config

import (
	"fmt"
	"strings"
)

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			db_id TEXT NOT NULL,
			driver TEXT NOT NULL DEFAULT '',
			configuration TEXT NOT NULL,
			accepted INTEGER NOT NULL DEFAULT 0,
			failure_kind TEXT NOT NULL DEFAULT '',
			failure_role TEXT NOT NULL DEFAULT '',
			next_action TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			binding_json TEXT NOT NULL DEFAULT '',
			attempt_index INTEGER NOT NULL DEFAULT 0,
			attempt_budget INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS repair_statements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			statement TEXT NOT NULL,
			UNIQUE(run_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_db_id ON runs(db_id)`,
		`CREATE INDEX IF NOT EXISTS idx_repair_statements_run_id ON repair_statements(run_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// SQLite ALTER TABLE ADD COLUMN fails if column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
