package mapstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the mapping table in process memory. It backs tests and
// is selectable for ephemeral deployments where drift repair is left entirely
// to reconciliation after restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	table map[string]string
}

// NewMemoryStore creates an empty in-memory mapping store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{table: make(map[string]string)}
}

// Set records the mapping for key, replacing any existing entry
func (s *MemoryStore) Set(_ context.Context, key, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[key] = artifactID
	return nil
}

// Get returns the artifact id mapped to key, or ErrNotFound
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifactID, ok := s.table[key]
	if !ok {
		return "", fmt.Errorf("mapping for %q: %w", key, ErrNotFound)
	}
	return artifactID, nil
}

// Remove deletes the mapping for key and returns the removed artifact id
func (s *MemoryStore) Remove(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifactID, ok := s.table[key]
	if !ok {
		return "", fmt.Errorf("mapping for %q: %w", key, ErrNotFound)
	}
	delete(s.table, key)
	return artifactID, nil
}

// Entries returns a snapshot of all mappings
func (s *MemoryStore) Entries(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]string, len(s.table))
	for k, v := range s.table {
		snapshot[k] = v
	}
	return snapshot, nil
}

// Len returns the number of entries
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}
