// Package mapstore provides the durable ObjectKey→ArtifactId mapping store.
//
// The store is the single source of truth for whether a bucket object is
// already represented in the knowledge collection. Two production backends
// exist: a NATS JetStream KV bucket (preferred) and a file-backed JSON table
// (fallback), selected once at startup by a connectivity probe. An in-memory
// backend exists for tests and ephemeral deployments.
//
// All backends serialize their own mutations; callers never need external
// locking.
package mapstore

import (
	"context"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
)

// ErrNotFound is returned by Get and Remove when no mapping exists for a key.
var ErrNotFound = errors.ErrKeyNotFound

// Store associates object keys with the artifact ids the knowledge service
// assigned to their uploaded content.
type Store interface {
	// Set records the mapping for key, replacing any existing entry.
	Set(ctx context.Context, key, artifactID string) error

	// Get returns the artifact id mapped to key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Remove deletes the mapping for key and returns the removed artifact
	// id, or ErrNotFound if no mapping existed.
	Remove(ctx context.Context, key string) (string, error)
}

// Lister is implemented by backends that can enumerate all entries.
// Reconciliation orphan pruning requires it.
type Lister interface {
	// Entries returns a snapshot of all ObjectKey→ArtifactId pairs.
	Entries(ctx context.Context) (map[string]string, error)
}
