package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStores builds one of each implementation so every subtest runs
// against both backends.
func openStores(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, err := OpenBadger(t.TempDir())
	require.NoError(t, err, "open badger store")
	t.Cleanup(func() {
		_ = badgerStore.Close()
	})

	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
}

func TestStore(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing key returns ErrKeyNotFound", func(t *testing.T) {
				_, err := store.Get("absent/" + name)
				assert.ErrorIs(t, err, ErrKeyNotFound)
			})

			t.Run("put and get round-trips", func(t *testing.T) {
				require.NoError(t, store.Put("doc-1", []byte(`{"a":1}`)))

				value, err := store.Get("doc-1")
				require.NoError(t, err)
				assert.Equal(t, []byte(`{"a":1}`), value)
			})

			t.Run("put overwrites", func(t *testing.T) {
				require.NoError(t, store.Put("doc-2", []byte("first")))
				require.NoError(t, store.Put("doc-2", []byte("second")))

				value, err := store.Get("doc-2")
				require.NoError(t, err)
				assert.Equal(t, []byte("second"), value)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				require.NoError(t, store.Put("doc-3", []byte("x")))
				require.NoError(t, store.Delete("doc-3"))
				require.NoError(t, store.Delete("doc-3"))

				_, err := store.Get("doc-3")
				assert.ErrorIs(t, err, ErrKeyNotFound)
			})
		})
	}
}

func TestStoreKeysOrderedWithLimit(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			// Insert out of order; Keys must come back byte-sorted.
			for _, k := range []string{"carol", "alice", "dave", "bob"} {
				require.NoError(t, store.Put(k, []byte(k)))
			}

			keys, err := store.Keys(10)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, keys)

			keys, err = store.Keys(2)
			require.NoError(t, err)
			assert.Equal(t, []string{"alice", "bob"}, keys)

			keys, err = store.Keys(0)
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestMemoryStoreCopyIsolation(t *testing.T) {
	store := NewMemoryStore()

	original := []byte("value")
	require.NoError(t, store.Put("k", original))

	// Mutating the slice we passed in must not reach the store.
	original[0] = 'X'
	got, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), got)

	// Mutating what we read back must not corrupt later reads.
	got[0] = 'Y'
	again, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestBadgerStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenBadger(dir)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(fmt.Sprintf("doc-%d", i), []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, store.Close())

	reopened, err := OpenBadger(dir)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get("doc-3")
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), value)

	keys, err := reopened.Keys(100)
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}
