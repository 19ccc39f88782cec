package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func (r *record) GetID() string { return r.ID }

func setupStores(t *testing.T) map[string]Store {
	t.Helper()

	db, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"badger": NewBadgerStore(db, "record"),
		"memory": NewMemoryStore(),
	}
}

func TestStores(t *testing.T) {
	for name, store := range setupStores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			t.Run("Create", func(t *testing.T) {
				require.NoError(t, store.Create(&record{ID: "a", Value: 1}))
				err := store.Create(&record{ID: "a", Value: 2})
				assert.True(t, errors.Is(err, ErrExists))
				assert.Error(t, store.Create(&record{}))
			})

			t.Run("Get", func(t *testing.T) {
				var r record
				require.NoError(t, store.Get("a", &r))
				assert.Equal(t, 1, r.Value)

				err := store.Get("missing", &r)
				assert.True(t, errors.Is(err, ErrNotFound))
			})

			t.Run("Put", func(t *testing.T) {
				require.NoError(t, store.Put(&record{ID: "a", Value: 3}))
				require.NoError(t, store.Put(&record{ID: "b", Value: 4}))

				var r record
				require.NoError(t, store.Get("a", &r))
				assert.Equal(t, 3, r.Value)
			})

			t.Run("List", func(t *testing.T) {
				var all []record
				require.NoError(t, store.List(&all))
				require.Len(t, all, 2)
				assert.Equal(t, "a", all[0].ID)
				assert.Equal(t, "b", all[1].ID)
			})

			t.Run("Delete", func(t *testing.T) {
				require.NoError(t, store.Delete("a"))
				err := store.Delete("a")
				assert.True(t, errors.Is(err, ErrNotFound))

				var all []record
				require.NoError(t, store.List(&all))
				assert.Len(t, all, 1)
			})
		})
	}
}

func TestBadgerStore_IDs(t *testing.T) {
	db, err := OpenBadger("")
	require.NoError(t, err)
	defer db.Close()

	store := NewBadgerStore(db, "record")
	other := NewBadgerStore(db, "other")
	require.NoError(t, store.Put(&record{ID: "x"}))
	require.NoError(t, store.Put(&record{ID: "y"}))
	require.NoError(t, other.Put(&record{ID: "z"}))

	ids, err := store.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids)
}
