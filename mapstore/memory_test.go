package mapstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a.txt", "file-1"))

	got, err := store.Get(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "file-1", got)

	removed, err := store.Remove(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "file-1", removed)

	_, err = store.Get(ctx, "a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreRemoveMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Remove(context.Background(), "never-set")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreEntriesIsSnapshot(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a.txt", "file-1"))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)

	// Mutating the snapshot must not affect the store
	entries["b.txt"] = "file-2"
	_, err = store.Get(ctx, "b.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}
