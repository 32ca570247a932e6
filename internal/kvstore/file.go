package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every key in one JSON object file.
// The file is re-read on each Get so that writes from another ogctl process
// are picked up.
type FileStore struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// NewFileStore returns a store backed by the file at path. The file and its
// directory are created lazily on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store requires a path")
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	entries := map[string]string{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}
	return entries, nil
}

// save writes entries atomically (temp file + rename).
func (s *FileStore) save(entries map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save store file: %w", err)
	}

	return nil
}

// Get implements Store.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, ErrClosed
	}

	entries, err := s.load()
	if err != nil {
		return "", false, err
	}
	value, ok := entries[key]
	return value, ok, nil
}

// Set implements Store.
func (s *FileStore) Set(key, value string) error {
	return s.SetMulti(map[string]string{key: value})
}

// SetMulti implements Store. All entries land in a single rename.
func (s *FileStore) SetMulti(updates map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	entries, err := s.load()
	if err != nil {
		return err
	}
	for k, v := range updates {
		entries[k] = v
	}
	return s.save(entries)
}

// Delete implements Store.
func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	entries, err := s.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(entries, k)
	}
	return s.save(entries)
}

// Close implements Store.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
