package records

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDriverName is the database/sql driver registered by modernc.org/sqlite.
const SQLiteDriverName = "sqlite"

// sqliteTimeLayout is fixed width so created_at sorts as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	migrations:  sqliteMigrations,
	sizeQuery:   "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
	timeArg:     func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

// OpenSQLite opens (creating if needed) the database at path and migrates it
// to the latest schema. ":memory:" yields a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open(SQLiteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	// One connection keeps an in-memory database alive and serialises
	// writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring sqlite (%s): %w", p, err)
		}
	}

	if err := applyMigrations(ctx, db, sqliteDialect); err != nil {
		db.Close()
		return nil, err
	}

	s := &sqlStore{db: db, d: sqliteDialect, closeFn: db.Close, now: time.Now}
	s.inTx = func(ctx context.Context, fn func(tx *sql.Tx) error) error {
		return inTx(ctx, db, fn)
	}
	return s, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
