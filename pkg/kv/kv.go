package kv

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store is a durable string key/value map. Put applies a batch all-or-nothing.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Put(values map[string]string) error
	Delete(keys ...string) error
	Close() error
}

// Open creates the parent directory of path and opens the named backend.
func Open(backend, path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	switch backend {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
