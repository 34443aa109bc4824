package mapstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectFallsBackToFileWhenProbeFails(t *testing.T) {
	cfg := SelectConfig{
		Backend:      BackendAuto,
		NATSURL:      "nats://127.0.0.1:1", // unreachable
		KVBucket:     "mappings",
		FilePath:     filepath.Join(t.TempDir(), "mappings.json"),
		ProbeTimeout: 500 * time.Millisecond,
	}

	sel, err := Select(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, sel.Backend)
	assert.Nil(t, sel.Client)

	// The fallback store is fully operational
	ctx := context.Background()
	require.NoError(t, sel.Store.Set(ctx, "a.txt", "file-1"))

	got, err := sel.Store.Get(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "file-1", got)

	removed, err := sel.Store.Remove(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "file-1", removed)
}

func TestSelectForcedKVFailsWhenUnreachable(t *testing.T) {
	cfg := SelectConfig{
		Backend:      BackendKV,
		NATSURL:      "nats://127.0.0.1:1",
		KVBucket:     "mappings",
		ProbeTimeout: 500 * time.Millisecond,
	}

	_, err := Select(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestSelectForcedFile(t *testing.T) {
	cfg := SelectConfig{
		Backend:  BackendFile,
		FilePath: filepath.Join(t.TempDir(), "mappings.json"),
	}

	sel, err := Select(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, sel.Backend)
	assert.IsType(t, &FileStore{}, sel.Store)
}

func TestSelectMemoryBackend(t *testing.T) {
	sel, err := Select(context.Background(), SelectConfig{Backend: BackendMemory}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, sel.Backend)
	assert.IsType(t, &MemoryStore{}, sel.Store)
}

func TestSelectUnknownBackend(t *testing.T) {
	_, err := Select(context.Background(), SelectConfig{Backend: "redis"}, nil)
	assert.Error(t, err)
}

func TestSelectAutoWithoutNATSConfigFallsBack(t *testing.T) {
	cfg := SelectConfig{
		Backend:  BackendAuto,
		FilePath: filepath.Join(t.TempDir(), "mappings.json"),
	}

	sel, err := Select(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendFile, sel.Backend)
}

func TestKeyEncodingRoundTrip(t *testing.T) {
	keys := []string{
		"a.txt",
		"docs/reports/2024 q1.pdf",
		"weird key/with spaces+plus",
		"unicode-ключ.txt",
	}

	for _, key := range keys {
		encoded := encodeKey(key)
		assert.NotContains(t, encoded[len(keyPrefix):], "/")
		assert.NotContains(t, encoded[len(keyPrefix):], " ")

		decoded, err := decodeKey(encoded)
		require.NoError(t, err)
		assert.Equal(t, key, decoded)
	}
}

func TestDecodeKeyRejectsForeignNamespace(t *testing.T) {
	_, err := decodeKey("other.ABC")
	assert.Error(t, err)

	_, err = decodeKey("mapping.!!!not-base32!!!")
	assert.Error(t, err)
}
