package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
var migrations = []string{
	// Migration 0: memory records. Rows are written on ingest and
	// write-back and never updated.
	`CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		namespace   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		content     TEXT NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		source_file TEXT NOT NULL DEFAULT '',
		uploader    TEXT NOT NULL DEFAULT '',
		category    TEXT NOT NULL DEFAULT '',
		chunk_index INTEGER NOT NULL DEFAULT 0,
		page        INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_records_namespace ON records(namespace, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_records_source    ON records(namespace, source_file)`,

	// Migration 3: key/value settings (embedding dimension).
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// applyMigrations runs any migrations that have not yet been applied.
func applyMigrations(conn *sql.DB) error {
	// Ensure the migration tracking table exists first.
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	return nil
}

// applyVectorTables creates the sqlite-vec virtual table. Namespaces are a
// partition key so a KNN query only scans its own namespace.
func applyVectorTables(conn *sql.DB, dimension int) error {
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_records USING vec0(
		id TEXT PRIMARY KEY,
		namespace TEXT PARTITION KEY,
		embedding float[%d]
	)`, dimension)

	if _, err := conn.Exec(stmt); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	return nil
}
