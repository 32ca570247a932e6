package kvstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	file, err := NewFileStore(filepath.Join(dir, "file", "store.json"))
	require.NoError(t, err)

	sqlite, err := NewSQLiteStore(filepath.Join(dir, "db", "store.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"file":   file,
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStores_GetSetDelete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("devices")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("devices", `[{"conMethod":"IP"}]`))
			v, ok, err := s.Get("devices")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[{"conMethod":"IP"}]`, v)

			require.NoError(t, s.Set("devices", `[]`))
			v, _, err = s.Get("devices")
			require.NoError(t, err)
			assert.Equal(t, `[]`, v)

			require.NoError(t, s.SetMulti(map[string]string{"devices": "[1]", "currIndex": "0"}))
			v, _, _ = s.Get("devices")
			assert.Equal(t, "[1]", v)
			v, _, _ = s.Get("currIndex")
			assert.Equal(t, "0", v)

			require.NoError(t, s.Delete("devices", "missing"))
			_, ok, err = s.Get("devices")
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, _ = s.Get("currIndex")
			assert.True(t, ok)
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ogctl", "store.json")

	s1, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set("currIndex", "2"))

	s2, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := s2.Get("currIndex")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")
}

func TestFileStore_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, _, err = s.Get("devices")
	assert.Error(t, err)
}

func TestFileStore_Closed(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.Get("x")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set("x", "y"), ErrClosed)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set("devices", "[]"))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get("devices")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("file", filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	s, err = Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open("redis", "")
	assert.Error(t, err)
}

func TestSQLiteStore_DeleteIsAtomic(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetMulti(map[string]string{"devices": "[]", "currIndex": "0", "lastRemoved": "{}"}))

	_, err = s.db.Exec(`CREATE TRIGGER keep_index BEFORE DELETE ON kv
		WHEN OLD.key = 'currIndex' BEGIN SELECT RAISE(ABORT, 'locked'); END`)
	require.NoError(t, err)

	err = s.Delete("devices", "currIndex", "lastRemoved")
	require.Error(t, err)

	for _, key := range []string{"devices", "currIndex", "lastRemoved"} {
		_, ok, err := s.Get(key)
		require.NoError(t, err)
		assert.True(t, ok, "%s should survive a failed delete", key)
	}

	_, err = s.db.Exec(`DROP TRIGGER keep_index`)
	require.NoError(t, err)
	require.NoError(t, s.Delete("devices", "currIndex", "lastRemoved"))
	_, ok, err := s.Get("currIndex")
	require.NoError(t, err)
	assert.False(t, ok)
}
