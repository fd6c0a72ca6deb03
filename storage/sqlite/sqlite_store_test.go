package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/storage"
	"github.com/creativeprojects/mailarchive/storage/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStoreWithLogger(filepath.Join(t.TempDir(), "archive.sqlite3"), lib.NewTestLogger(t, "sqlite"))
	require.NoError(t, err)

	defer store.Close()

	test.RunTestsOnStore(t, store)
}

func TestSQLiteStoreConcurrentHandles(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "archive.sqlite3")
	test.RunConcurrentTestsOnStore(t, func() (storage.Store, error) {
		return NewSQLiteStore(filename)
	})
}

func TestSQLiteStoreSharedFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "archive.sqlite3")
	first, err := NewSQLiteStore(filename)
	require.NoError(t, err)
	defer first.Close()

	second, err := NewSQLiteStore(filename)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Create("key", "value"))
	value, err := second.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
	assert.True(t, second.SupportConcurrentHandles())
}

func TestSQLiteStoreBackup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "archive.sqlite3"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Create("key", "value"))

	var _ storage.Backuper = store
	backup := filepath.Join(dir, "backup.sqlite3")
	require.NoError(t, store.Backup(backup))
	// an existing file is never overwritten
	assert.Error(t, store.Backup(backup))

	copied, err := NewSQLiteStore(backup)
	require.NoError(t, err)
	defer copied.Close()
	value, err := copied.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}
