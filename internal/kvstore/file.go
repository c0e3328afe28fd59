package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	lockRetry = 10 * time.Millisecond
	lockWait  = 5 * time.Second
	// A lock file older than this is left over from a crashed writer.
	lockStale = 30 * time.Second
)

// ErrLocked is returned when another writer holds a key for longer than the
// store is willing to wait.
var ErrLocked = errors.New("store key is locked by another writer")

// FileStore keeps each key in its own JSON file under dir. Writers in other
// processes are serialised through a sibling .lock file per key.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore backed by the given directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cannot create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) lockPath(key string) string {
	return filepath.Join(s.dir, key+".lock")
}

// Get reads the value for key.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, fmt.Errorf("invalid store key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read(key)
}

// Set writes the value for key atomically.
func (s *FileStore) Set(key string, value []byte) error {
	return s.Update(key, func([]byte, bool) ([]byte, error) {
		if value == nil {
			return []byte{}, nil
		}
		return value, nil
	})
}

// Delete removes the file for key.
func (s *FileStore) Delete(key string) error {
	return s.Update(key, func([]byte, bool) ([]byte, error) { return nil, nil })
}

// Update performs a read-modify-write of key while holding its lock file.
func (s *FileStore) Update(key string, fn UpdateFunc) error {
	if err := validateKey(key); err != nil {
		return fmt.Errorf("invalid store key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := acquireLock(s.lockPath(key))
	if err != nil {
		return err
	}
	defer unlock()

	old, ok, err := s.read(key)
	if err != nil {
		return err
	}
	next, err := fn(old, ok)
	if err != nil {
		return err
	}
	if next == nil {
		if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return writeAtomic(s.Path(key), next)
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) read(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// acquireLock creates path exclusively, retrying until lockWait elapses.
// A lock older than lockStale is removed and taken over.
func acquireLock(path string) (func(), error) {
	deadline := time.Now().Add(lockWait)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > lockStale {
			_ = os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		time.Sleep(lockRetry)
	}
}

// writeAtomic is only called with the key's lock held, so the temp name
// cannot collide with another writer.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
