package kvstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// SQLiteStore keeps keys in a single table of an SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("cannot create store directory: %w", err)
	}

	// Writers in other processes wait on the busy timeout instead of failing,
	// and transactions take the write lock up front.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// One connection per process; other processes queue on the database lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get reads the value for key.
func (s *SQLiteStore) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, fmt.Errorf("invalid store key: %w", err)
	}

	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value for key.
func (s *SQLiteStore) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid store key: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLiteStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid store key: %w", err)
	}

	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Update runs the read-modify-write of key inside one immediate transaction.
func (s *SQLiteStore) Update(key string, fn UpdateFunc) (err error) {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid store key: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update %q: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var old []byte
	ok := true
	err = tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		ok, err = false, nil
	}
	if err != nil {
		return fmt.Errorf("read %q: %w", key, err)
	}

	next, err := fn(old, ok)
	if err != nil {
		return err
	}
	if next == nil {
		_, err = tx.Exec(`DELETE FROM kv WHERE key = ?`, key)
	} else {
		_, err = tx.Exec(
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, next,
		)
	}
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %q: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
