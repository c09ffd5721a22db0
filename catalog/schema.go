package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// migrationSteps describe the schema, one version at a time. New steps are
// appended, never edited; the catalog applies the tail it has not seen yet
// at open. Grounded on the same versioned-migration scheme used by the
// infra databases this registry grew out of.
var migrationSteps = [][]string{
	// v1: core tables.
	{
		`CREATE TABLE packages (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			owner       TEXT NOT NULL,
			repo        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			topics      TEXT NOT NULL DEFAULT '[]',
			license     TEXT NOT NULL DEFAULT '',
			homepage    TEXT NOT NULL DEFAULT '',
			source_url  TEXT NOT NULL DEFAULT '',
			stars       INTEGER NOT NULL DEFAULT 0,
			private     INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL,
			UNIQUE (owner, repo)
		)`,
		`CREATE TABLE releases (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			package_id   INTEGER NOT NULL REFERENCES packages (id),
			owner        TEXT NOT NULL,
			repo         TEXT NOT NULL,
			tag          TEXT NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			body         TEXT NOT NULL DEFAULT '',
			draft        INTEGER NOT NULL DEFAULT 0,
			prerelease   INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			published_at INTEGER,
			file_size    INTEGER NOT NULL DEFAULT 0,
			sha256       TEXT NOT NULL DEFAULT '',
			downloads    INTEGER NOT NULL DEFAULT 0,
			UNIQUE (owner, repo, tag)
		)`,
		`CREATE TABLE users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT,
			active        INTEGER NOT NULL DEFAULT 1,
			admin         INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE TABLE identities (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id          INTEGER NOT NULL REFERENCES users (id),
			provider         TEXT NOT NULL,
			provider_user_id TEXT NOT NULL,
			display          TEXT NOT NULL DEFAULT '',
			created_at       INTEGER NOT NULL,
			UNIQUE (provider, provider_user_id)
		)`,
		`CREATE TABLE tokens (
			token      TEXT PRIMARY KEY,
			user_id    INTEGER NOT NULL REFERENCES users (id),
			issued_at  INTEGER NOT NULL,
			expires_at INTEGER,
			scopes     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE aliases (
			short_name TEXT PRIMARY KEY,
			owner      TEXT NOT NULL,
			repo       TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE download_counts (
			owner TEXT NOT NULL,
			repo  TEXT NOT NULL,
			tag   TEXT NOT NULL,
			day   TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			UNIQUE (owner, repo, tag, day)
		)`,
		`CREATE TABLE registry_config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	},
	// v2: discovery result cache (ttl enforced by readers).
	{
		`CREATE TABLE discovery_cache (
			cache_key  TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			fetched_at INTEGER NOT NULL
		)`,
	},
}

// migrate brings the schema up to the newest version, creating the version
// table on first open.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating version table: %w", err)
	}

	var current int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	}

	for v := current; v < len(migrationSteps); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		for _, stmt := range migrationSteps[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration to v%d: %w", v+1, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, v+1); err != nil {
			tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}
