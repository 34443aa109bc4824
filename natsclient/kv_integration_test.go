//go:build integration

package natsclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore_RoundTrip(t *testing.T) {
	testClient := NewTestClient(t, WithKV("test-mappings"))
	client := testClient.Client

	ctx := context.Background()

	bucket, err := client.GetKeyValueBucket(ctx, "test-mappings")
	require.NoError(t, err)

	kvStore := client.NewKVStore(bucket)

	t.Run("put then get", func(t *testing.T) {
		rev, err := kvStore.Put(ctx, "mapping.a", []byte("file-123"))
		require.NoError(t, err)
		assert.Greater(t, rev, uint64(0))

		entry, err := kvStore.Get(ctx, "mapping.a")
		require.NoError(t, err)
		assert.Equal(t, "file-123", string(entry.Value))
	})

	t.Run("get missing key", func(t *testing.T) {
		_, err := kvStore.Get(ctx, "mapping.missing")
		assert.ErrorIs(t, err, ErrKVKeyNotFound)
	})

	t.Run("last writer wins", func(t *testing.T) {
		_, err := kvStore.Put(ctx, "mapping.b", []byte("first"))
		require.NoError(t, err)
		_, err = kvStore.Put(ctx, "mapping.b", []byte("second"))
		require.NoError(t, err)

		entry, err := kvStore.Get(ctx, "mapping.b")
		require.NoError(t, err)
		assert.Equal(t, "second", string(entry.Value))
	})

	t.Run("delete then get", func(t *testing.T) {
		_, err := kvStore.Put(ctx, "mapping.c", []byte("gone-soon"))
		require.NoError(t, err)

		require.NoError(t, kvStore.Delete(ctx, "mapping.c"))

		_, err = kvStore.Get(ctx, "mapping.c")
		assert.ErrorIs(t, err, ErrKVKeyNotFound)
	})

	t.Run("list keys by prefix", func(t *testing.T) {
		_, err := kvStore.Put(ctx, "mapping.list-x", []byte("x"))
		require.NoError(t, err)
		_, err = kvStore.Put(ctx, "mapping.list-y", []byte("y"))
		require.NoError(t, err)

		keys, err := kvStore.ListKeys(ctx, "mapping.list-*")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"mapping.list-x", "mapping.list-y"}, keys)
	})

	t.Run("oversized value rejected", func(t *testing.T) {
		small := client.NewKVStore(bucket, func(opts *KVOptions) {
			opts.MaxValueSize = 4
		})
		_, err := small.Put(ctx, "mapping.big", []byte("too large"))
		assert.Error(t, err)
	})
}
