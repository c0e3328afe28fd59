// Package kvstore provides the named-record persistence the audit log is
// kept in: one value per key, read at startup and rewritten on change.
package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store is a minimal key-value persistence contract.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(key string) (value []byte, ok bool, err error)
	// Set replaces the value for key.
	Set(key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Update reads key, passes the current value to fn, and writes back what
	// fn returns as one step that no other writer can interleave with, even
	// across processes. A nil result deletes the key. If fn returns an error
	// nothing is written and that error is returned.
	Update(key string, fn UpdateFunc) error
	Close() error
}

// UpdateFunc computes the next value of a key from its current one.
type UpdateFunc func(old []byte, ok bool) ([]byte, error)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// DefaultDir returns the default directory for tokendesk state.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "tokendesk")
	}
	return filepath.Join(home, ".tokendesk")
}

// Open returns a Store for the named backend. For the file backend path is
// a directory; for sqlite it is the database file.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendFile:
		if path == "" {
			path = DefaultDir()
		}
		return NewFileStore(path)
	case BackendSQLite:
		if path == "" {
			path = filepath.Join(DefaultDir(), "tokendesk.db")
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
