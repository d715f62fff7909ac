package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Migration is one forward schema step.
type Migration struct {
	Version     string
	Description string
	Up          string
}

var sqliteMigrations = []Migration{
	{
		Version:     "1.0.0",
		Description: "books table",
		Up: `
CREATE TABLE IF NOT EXISTS books (
	isbn         TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	authors      TEXT,
	genres       TEXT,
	publish_date TEXT,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_books_created_at ON books(created_at DESC);`,
	},
	{
		Version:     "1.1.0",
		Description: "track last update",
		Up:          `ALTER TABLE books ADD COLUMN updated_at TEXT;`,
	},
}

var postgresMigrations = []Migration{
	{
		Version:     "1.0.0",
		Description: "books table",
		Up: `
CREATE TABLE IF NOT EXISTS books (
	isbn         TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT,
	authors      TEXT,
	genres       TEXT,
	publish_date TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_books_created_at ON books(created_at DESC);`,
	},
	{
		Version:     "1.1.0",
		Description: "track last update",
		Up:          `ALTER TABLE books ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ;`,
	},
}

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
	version    TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// applyMigrations runs every migration newer than the recorded schema
// version, in order, recording each one.
func applyMigrations(ctx context.Context, db *sql.DB, d dialect) error {
	if _, err := db.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current := semver.MustParse("0.0.0")
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return fmt.Errorf("reading schema_version: %w", err)
	}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return fmt.Errorf("reading schema_version: %w", err)
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			rows.Close()
			return fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return fmt.Errorf("reading schema_version: %w", err)
	}

	for _, m := range d.migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		if _, err := db.ExecContext(ctx, m.Up); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES ("+d.placeholder(1)+")", m.Version); err != nil {
			return fmt.Errorf("recording migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}
