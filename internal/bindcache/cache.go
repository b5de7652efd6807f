// Package bindcache persists the binding commit's declaration-file text
// and a fingerprint of the registry it was generated from (spec §4.13),
// so a host that calls Commit again across process restarts with an
// unchanged registry can skip re-emitting (and re-writing) the
// declaration file. Uses the same sql.Open("sqlite", path) + PRAGMA
// journal_mode=WAL pattern as d1.go, generalized from a per-binding D1
// database to one small cache table.
package bindcache

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bind_cache (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	fingerprint TEXT NOT NULL,
	declaration TEXT NOT NULL
);`

// Cache wraps one SQLite-backed cache file.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path. path may be
// ":memory:" for a process-local cache that never persists.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("bindcache: opening %q: %w", path, err)
	}
	// An in-memory database only persists for the lifetime of one
	// connection; cap the pool at one so database/sql never opens a
	// second, separate in-memory instance underneath the same *Cache.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		// WAL mode is unavailable for ":memory:" databases; not fatal.
		_ = err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bindcache: creating schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Lookup returns the cached declaration text if fingerprint matches the
// last Store call, and false otherwise (including on a cold cache).
func (c *Cache) Lookup(fingerprint string) (declaration string, hit bool, err error) {
	row := c.db.QueryRow(`SELECT fingerprint, declaration FROM bind_cache WHERE id = 1`)
	var storedFP, decl string
	if err := row.Scan(&storedFP, &decl); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("bindcache: lookup: %w", err)
	}
	if storedFP != fingerprint {
		return "", false, nil
	}
	return decl, true, nil
}

// Store records fingerprint/declaration as the most recent commit,
// replacing whatever was stored before.
func (c *Cache) Store(fingerprint, declaration string) error {
	_, err := c.db.Exec(
		`INSERT INTO bind_cache (id, fingerprint, declaration) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET fingerprint = excluded.fingerprint, declaration = excluded.declaration`,
		fingerprint, declaration,
	)
	if err != nil {
		return fmt.Errorf("bindcache: store: %w", err)
	}
	return nil
}
