package kvstore

import "sync"

// Memory is an in-process Store. GetErr and SetErr, when non-nil, are
// returned by every read or write respectively.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string

	GetErr error
	SetErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(key, value string) error {
	return m.SetMulti(map[string]string{key: value})
}

// SetMulti implements Store.
func (m *Memory) SetMulti(entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	for k, v := range entries {
		m.entries[k] = v
	}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
