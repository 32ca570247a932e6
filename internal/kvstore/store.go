// Package kvstore provides the small persistent key-value storage that backs
// the device registry.
//
// Three backends are available:
//   - FileStore: a single JSON object on disk, rewritten atomically
//   - SQLiteStore: a "kv" table in a pure-Go SQLite database
//   - Memory: an in-process map, used by tests and dry runs
//
// Values are opaque strings; callers decide the encoding (the registry stores
// JSON). SetMulti writes several keys as one unit so related values never
// diverge on disk.
package kvstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: store is closed")

// Store is the persistence interface used by the registry.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool, error)

	// Set overwrites a single key.
	Set(key, value string) error

	// SetMulti writes all entries together.
	SetMulti(entries map[string]string) error

	// Delete removes keys; missing keys are ignored.
	Delete(keys ...string) error

	// Close releases any underlying resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates a store for the named backend. path is ignored for memory.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case BackendFile, "":
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected file, sqlite or memory)", backend)
	}
}
