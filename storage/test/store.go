package test

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/record"
	"github.com/creativeprojects/mailarchive/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sampleMessage = "From: contact@example.org\r\n" +
		"To: contact@example.org\r\n" +
		"Subject: A little message, just for you\r\n" +
		"Date: Wed, 11 May 2016 14:31:59 +0000\r\n" +
		"Message-ID: <0000000@localhost/>\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Hi there :)"
	sampleMessageHash = lib.ContentHash([]byte(sampleMessage))
	sampleRecord      = record.New("Archive/2016", "1463000000.M1P1.localhost", "S", time.Unix(1463000000, 0)).String()
	updatedRecord     = record.New("Archive/2016", "1463000000.M1P1.localhost", "RS", time.Unix(1462000000, 0)).String()
)

// RunTestsOnStore is the unit tests runner called by the concrete implementations of storage.Store.
// The store must be empty.
func RunTestsOnStore(t *testing.T, store storage.Store) {
	require.NotNil(t, store)

	t.Run("EmptyStore", func(t *testing.T) {
		keys, err := store.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("GetMissingKey", func(t *testing.T) {
		_, err := store.Get(sampleMessageHash)
		assert.ErrorIs(t, err, lib.ErrNotFound)
	})

	t.Run("DeleteMissingKey", func(t *testing.T) {
		err := store.Delete(sampleMessageHash)
		assert.ErrorIs(t, err, lib.ErrNotFound)
	})

	t.Run("CreateKey", func(t *testing.T) {
		err := store.Create(sampleMessageHash, sampleRecord)
		require.NoError(t, err)

		value, err := store.Get(sampleMessageHash)
		require.NoError(t, err)
		assert.Equal(t, sampleRecord, value)
	})

	t.Run("CreateExistingKey", func(t *testing.T) {
		err := store.Create(sampleMessageHash, updatedRecord)
		assert.ErrorIs(t, err, lib.ErrAlreadyExists)

		// value is untouched
		value, err := store.Get(sampleMessageHash)
		require.NoError(t, err)
		assert.Equal(t, sampleRecord, value)
	})

	t.Run("SetExistingKey", func(t *testing.T) {
		err := store.Set(sampleMessageHash, updatedRecord)
		require.NoError(t, err)

		value, err := store.Get(sampleMessageHash)
		require.NoError(t, err)
		assert.Equal(t, updatedRecord, value)
	})

	t.Run("SetNewKey", func(t *testing.T) {
		err := store.Set("key-set", sampleRecord)
		require.NoError(t, err)

		value, err := store.Get("key-set")
		require.NoError(t, err)
		assert.Equal(t, sampleRecord, value)
	})

	t.Run("KeysAreSorted", func(t *testing.T) {
		for _, key := range []string{"c-key", "a-key", "b-key"} {
			require.NoError(t, store.Create(key, sampleRecord))
		}
		keys, err := store.Keys()
		require.NoError(t, err)
		expected := []string{"a-key", "b-key", "c-key", sampleMessageHash, "key-set"}
		sort.Strings(expected)
		assert.Equal(t, expected, keys)
	})

	t.Run("DeleteKey", func(t *testing.T) {
		for _, key := range []string{"a-key", "b-key", "c-key", "key-set"} {
			require.NoError(t, store.Delete(key))
		}
		_, err := store.Get("a-key")
		assert.ErrorIs(t, err, lib.ErrNotFound)

		keys, err := store.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{sampleMessageHash}, keys)
	})

	t.Run("EmptyValueIsNotMissing", func(t *testing.T) {
		err := store.Create("empty", "")
		if errors.Is(err, lib.ErrEmptyValue) {
			// the backend cannot store an empty value: it must not pretend it did
			_, err = store.Get("empty")
			assert.ErrorIs(t, err, lib.ErrNotFound)
			return
		}
		require.NoError(t, err)
		value, err := store.Get("empty")
		require.NoError(t, err)
		assert.Equal(t, "", value)
		require.NoError(t, store.Delete("empty"))
	})

	t.Run("TransactionCommit", func(t *testing.T) {
		err := store.Transaction(func(tx storage.KV) error {
			if err := tx.Create("tx-1", sampleRecord); err != nil {
				return err
			}
			if err := tx.Set(sampleMessageHash, sampleRecord); err != nil {
				return err
			}
			// read your own writes
			value, err := tx.Get("tx-1")
			if err != nil {
				return err
			}
			if value != sampleRecord {
				return fmt.Errorf("unexpected value %q", value)
			}
			return nil
		})
		require.NoError(t, err)

		value, err := store.Get("tx-1")
		require.NoError(t, err)
		assert.Equal(t, sampleRecord, value)

		value, err = store.Get(sampleMessageHash)
		require.NoError(t, err)
		assert.Equal(t, sampleRecord, value)
	})

	t.Run("TransactionSeesItsOwnDelete", func(t *testing.T) {
		err := store.Transaction(func(tx storage.KV) error {
			if err := tx.Delete("tx-1"); err != nil {
				return err
			}
			if _, err := tx.Get("tx-1"); !errors.Is(err, lib.ErrNotFound) {
				return fmt.Errorf("expected not found but got %v", err)
			}
			keys, err := tx.Keys()
			if err != nil {
				return err
			}
			if len(keys) != 1 || keys[0] != sampleMessageHash {
				return fmt.Errorf("unexpected keys %v", keys)
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("TransactionRollback", func(t *testing.T) {
		failure := errors.New("failure")
		err := store.Transaction(func(tx storage.KV) error {
			if err := tx.Create("tx-2", sampleRecord); err != nil {
				return err
			}
			if err := tx.Set(sampleMessageHash, updatedRecord); err != nil {
				return err
			}
			if err := tx.Delete(sampleMessageHash); err != nil {
				return err
			}
			return failure
		})
		assert.ErrorIs(t, err, failure)

		// no partial write is visible
		_, err = store.Get("tx-2")
		assert.ErrorIs(t, err, lib.ErrNotFound)

		value, err := store.Get(sampleMessageHash)
		require.NoError(t, err)
		assert.Equal(t, sampleRecord, value)
	})

	t.Run("TransactionCreateExisting", func(t *testing.T) {
		err := store.Transaction(func(tx storage.KV) error {
			return tx.Create(sampleMessageHash, updatedRecord)
		})
		assert.ErrorIs(t, err, lib.ErrAlreadyExists)
	})
}

// RunConcurrentTestsOnStore verifies that only one of many handles creating the same key wins.
// open must return a new handle on the same location every time.
func RunConcurrentTestsOnStore(t *testing.T, open func() (storage.Store, error)) {
	const handles = 4

	stores := make([]storage.Store, handles)
	for i := range stores {
		store, err := open()
		require.NoError(t, err)
		stores[i] = store
	}
	defer func() {
		for _, store := range stores {
			store.Close()
		}
	}()
	if !stores[0].SupportConcurrentHandles() {
		t.Skip("backend does not support concurrent handles")
	}

	for round := 0; round < 10; round++ {
		key := fmt.Sprintf("concurrent-%d", round)
		results := make(chan error, handles)
		wg := sync.WaitGroup{}
		for i := range stores {
			wg.Add(1)
			go func(store storage.Store, value string) {
				defer wg.Done()
				results <- store.Create(key, value)
			}(stores[i], fmt.Sprintf("%s::%d::S::0.0", key, i))
		}
		wg.Wait()
		close(results)

		created := 0
		for err := range results {
			if err == nil {
				created++
				continue
			}
			assert.ErrorIs(t, err, lib.ErrAlreadyExists)
		}
		assert.Equal(t, 1, created, key)
	}
}
