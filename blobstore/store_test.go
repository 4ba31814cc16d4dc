package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	stores := []struct {
		name string
		make func(t *testing.T) Store
	}{
		{
			name: "Memory",
			make: func(t *testing.T) Store {
				return NewMemoryStore()
			},
		},
		{
			name: "Local",
			make: func(t *testing.T) Store {
				s, err := NewLocalStore(t.TempDir())
				require.NoError(t, err)

				return s
			},
		},
	}

	ctx := context.Background()

	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.make(t)

			t.Run("GetMissing", func(t *testing.T) {
				_, err := store.Get(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("PutGet", func(t *testing.T) {
				require.NoError(t, store.Put(ctx, "snapshots/a", []byte("alpha")))

				data, err := store.Get(ctx, "snapshots/a")
				require.NoError(t, err)
				assert.Equal(t, []byte("alpha"), data)
			})

			t.Run("PutReplaces", func(t *testing.T) {
				require.NoError(t, store.Put(ctx, "snapshots/a", []byte("beta")))

				data, err := store.Get(ctx, "snapshots/a")
				require.NoError(t, err)
				assert.Equal(t, []byte("beta"), data)
			})

			t.Run("List", func(t *testing.T) {
				require.NoError(t, store.Put(ctx, "snapshots/b", []byte("b")))
				require.NoError(t, store.Put(ctx, "other/c", []byte("c")))

				names, err := store.List(ctx, "snapshots/")
				require.NoError(t, err)
				assert.Equal(t, []string{"snapshots/a", "snapshots/b"}, names)
			})

			t.Run("Delete", func(t *testing.T) {
				require.NoError(t, store.Delete(ctx, "snapshots/a"))

				_, err := store.Get(ctx, "snapshots/a")
				assert.ErrorIs(t, err, ErrNotFound)

				// Deleting a missing blob is not an error.
				require.NoError(t, store.Delete(ctx, "snapshots/a"))
			})
		})
	}
}
