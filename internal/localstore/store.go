// Package localstore provides the durable key-value persistence behind the
// in-memory repositories. Each collection is serialized as a single value
// under a well-known key, loaded once at startup and rewritten after every
// mutation.
package localstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Keys under which the collections and bookkeeping live.
const (
	KeyItems     = "inventory-items"
	KeyLocations = "storage-locations"
	KeyHousehold = "household-state"
	KeyDeviceID  = "device-id"
)

// Store is a string-keyed durable store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	// Put writes the value, replacing any previous one.
	Put(key string, value []byte) error
	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key string) error
}

// SQLiteStore persists key-value pairs in a single-table SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the store at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	// Single writer; WAL keeps reads cheap while the collections rewrite.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
