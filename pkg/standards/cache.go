package standards

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// Cache is a derived store of resolved standards keyed by layer-set hash.
// It is never authoritative: a miss or a decode failure simply means the
// caller re-resolves from the layer snapshots. Stale rows are harmless
// because any layer change produces a new set hash.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (or creates) a cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("standards: open cache: %w", err)
	}
	return NewCache(db)
}

// NewCache wraps an existing database handle.
func NewCache(db *sql.DB) (*Cache, error) {
	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS resolved_standards (
		set_hash TEXT NOT NULL,
		key      TEXT NOT NULL,
		resolved JSON NOT NULL,
		PRIMARY KEY (set_hash, key)
	);`
	_, err := c.db.ExecContext(context.Background(), query)
	return err
}

// Get returns the cached resolution for (setHash, key), if present.
func (c *Cache) Get(ctx context.Context, setHash, key string) (Resolved, bool, error) {
	var raw []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT resolved FROM resolved_standards WHERE set_hash = ? AND key = ?`,
		setHash, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return Resolved{}, false, nil
	}
	if err != nil {
		return Resolved{}, false, fmt.Errorf("standards: cache get: %w", err)
	}

	var r Resolved
	if err := json.Unmarshal(raw, &r); err != nil {
		// Treat an undecodable row as a miss; the caller re-resolves.
		return Resolved{}, false, nil
	}
	return r, true, nil
}

// Put stores a resolution for (setHash, r.Key), replacing any prior row.
func (c *Cache) Put(ctx context.Context, setHash string, r Resolved) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("standards: cache encode: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO resolved_standards (set_hash, key, resolved) VALUES (?, ?, ?)`,
		setHash, r.Key, raw)
	if err != nil {
		return fmt.Errorf("standards: cache put: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }
