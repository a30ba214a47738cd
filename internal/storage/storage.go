// Package storage opens the shared SQLite database used by the state, memory,
// pattern and provenance stores.
package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// #region open

// Open opens a SQLite database with the pragmas every store relies on.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Single writer connection; concurrent transactions queue here instead
	// of surfacing SQLITE_BUSY to the stores.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	return db, nil
}

// #endregion open
