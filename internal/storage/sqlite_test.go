package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "test_pharmtrack.db")

	storage, err := NewSQLiteStorage(dbFile)
	require.NoError(t, err)
	defer storage.Close()

	// Use the shared test helper
	runStorageTests(t, storage)
}

func TestSQLiteStoragePersistence(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "test_persistence.db")

	storage, err := NewSQLiteStorage(dbFile)
	require.NoError(t, err)

	want := testEntries()
	require.NoError(t, storage.SaveEntries(want))
	require.NoError(t, storage.Close())

	// Reopen and check the list survived
	storage2, err := NewSQLiteStorage(dbFile)
	require.NoError(t, err)
	defer storage2.Close()

	got, err := storage2.LoadEntries()
	require.NoError(t, err)
	assertEntriesEqual(t, want, got)
}

func TestSQLiteStorageCorruptValue(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "corrupt.db"))
	require.NoError(t, err)
	defer storage.Close()

	_, err = storage.db.Exec("INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)", EntriesKey, "[{", "2025-05-21T08:00:00Z")
	require.NoError(t, err)

	_, err = storage.LoadEntries()
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	s := &sqlStorage{numbered: true}
	assert.Equal(t, "SELECT a FROM b WHERE c = $1 AND d = $2", s.rebind("SELECT a FROM b WHERE c = ? AND d = ?"))

	s.numbered = false
	assert.Equal(t, "SELECT a FROM b WHERE c = ?", s.rebind("SELECT a FROM b WHERE c = ?"))
}
