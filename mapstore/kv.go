package mapstore

import (
	"context"
	"encoding/base32"
	stderrors "errors"
	"fmt"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
	"github.com/cvaz1306/owui-kb-s3-sync-webhook/natsclient"
)

// keyPrefix namespaces mapping entries so the KV bucket can be shared with
// unrelated data.
const keyPrefix = "mapping."

// keyEncoding makes arbitrary object keys valid NATS KV keys. The KV key
// charset excludes most punctuation, and object keys routinely contain
// slashes and spaces.
var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// KVMapStore is the networked mapping store backend on a NATS JetStream
// key-value bucket.
type KVMapStore struct {
	kv *natsclient.KVStore
}

// NewKVMapStore wraps a connected KV store as a mapping store
func NewKVMapStore(kv *natsclient.KVStore) *KVMapStore {
	return &KVMapStore{kv: kv}
}

func encodeKey(objectKey string) string {
	return keyPrefix + keyEncoding.EncodeToString([]byte(objectKey))
}

func decodeKey(kvKey string) (string, error) {
	if len(kvKey) <= len(keyPrefix) || kvKey[:len(keyPrefix)] != keyPrefix {
		return "", fmt.Errorf("kv key %q outside mapping namespace", kvKey)
	}
	raw, err := keyEncoding.DecodeString(kvKey[len(keyPrefix):])
	if err != nil {
		return "", fmt.Errorf("decode kv key %q: %w", kvKey, err)
	}
	return string(raw), nil
}

// Set records the mapping for key, replacing any existing entry
func (s *KVMapStore) Set(ctx context.Context, key, artifactID string) error {
	_, err := s.kv.Put(ctx, encodeKey(key), []byte(artifactID))
	if err != nil {
		return errors.WrapTransient(err, "KVMapStore", "Set", "put mapping")
	}
	return nil
}

// Get returns the artifact id mapped to key, or ErrNotFound
func (s *KVMapStore) Get(ctx context.Context, key string) (string, error) {
	entry, err := s.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return "", fmt.Errorf("mapping for %q: %w", key, ErrNotFound)
		}
		return "", errors.WrapTransient(err, "KVMapStore", "Get", "get mapping")
	}
	return string(entry.Value), nil
}

// Remove deletes the mapping for key and returns the removed artifact id
func (s *KVMapStore) Remove(ctx context.Context, key string) (string, error) {
	kvKey := encodeKey(key)

	entry, err := s.kv.Get(ctx, kvKey)
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return "", fmt.Errorf("mapping for %q: %w", key, ErrNotFound)
		}
		return "", errors.WrapTransient(err, "KVMapStore", "Remove", "get mapping")
	}

	if err := s.kv.Delete(ctx, kvKey); err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			// Lost a race with a concurrent Remove; last writer wins
			return "", fmt.Errorf("mapping for %q: %w", key, ErrNotFound)
		}
		return "", errors.WrapTransient(err, "KVMapStore", "Remove", "delete mapping")
	}

	return string(entry.Value), nil
}

// Entries returns a snapshot of all mappings in the namespace
func (s *KVMapStore) Entries(ctx context.Context) (map[string]string, error) {
	kvKeys, err := s.kv.ListKeys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, errors.WrapTransient(err, "KVMapStore", "Entries", "list mapping keys")
	}

	table := make(map[string]string, len(kvKeys))
	for _, kvKey := range kvKeys {
		objectKey, err := decodeKey(kvKey)
		if err != nil {
			return nil, errors.WrapInvalid(err, "KVMapStore", "Entries", "decode mapping key")
		}

		entry, err := s.kv.Get(ctx, kvKey)
		if err != nil {
			if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
				continue // removed between list and get
			}
			return nil, errors.WrapTransient(err, "KVMapStore", "Entries", "get mapping")
		}
		table[objectKey] = string(entry.Value)
	}

	return table, nil
}
