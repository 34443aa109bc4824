package mapstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
)

// FileStore persists the mapping table as a single JSON object on disk.
//
// Every mutation re-reads, modifies, and rewrites the whole table. The table
// is small and mutations are rare relative to the network I/O around them, so
// the wholesale rewrite is acceptable. A missing or corrupt backing file
// initializes to an empty table rather than failing.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore creates a file-backed mapping store at path. The parent
// directory is created if needed.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"FileStore", "NewFileStore", "backing file path required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "FileStore", "NewFileStore", "create parent directory")
		}
	}

	return &FileStore{path: path, logger: logger}, nil
}

// Set records the mapping for key, replacing any existing entry
func (s *FileStore) Set(_ context.Context, key, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.load()
	table[key] = artifactID
	return s.save(table)
}

// Get returns the artifact id mapped to key, or ErrNotFound
func (s *FileStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.load()
	artifactID, ok := table[key]
	if !ok {
		return "", fmt.Errorf("mapping for %q: %w", key, ErrNotFound)
	}
	return artifactID, nil
}

// Remove deletes the mapping for key and returns the removed artifact id
func (s *FileStore) Remove(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.load()
	artifactID, ok := table[key]
	if !ok {
		return "", fmt.Errorf("mapping for %q: %w", key, ErrNotFound)
	}

	delete(table, key)
	if err := s.save(table); err != nil {
		return "", err
	}
	return artifactID, nil
}

// Entries returns a snapshot of all mappings
func (s *FileStore) Entries(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(), nil
}

// Len returns the number of entries currently persisted
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.load())
}

// load reads the persisted table. Callers must hold s.mu. A missing or
// unparsable file yields an empty table; corruption is logged and discarded
// on the next save.
func (s *FileStore) load() map[string]string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("mapping table unreadable, starting empty",
				"path", s.path, "error", err)
		}
		return make(map[string]string)
	}

	var table map[string]string
	if err := json.Unmarshal(data, &table); err != nil {
		s.logger.Warn("mapping table corrupt, resetting to empty table",
			"path", s.path, "error", err)
		return make(map[string]string)
	}
	if table == nil {
		table = make(map[string]string)
	}
	return table
}

// save rewrites the whole table atomically (temp file + rename).
// Callers must hold s.mu.
func (s *FileStore) save(table map[string]string) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return errors.Wrap(err, "FileStore", "save", "marshal mapping table")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".mappings-*.json")
	if err != nil {
		return errors.Wrap(err, "FileStore", "save", "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "FileStore", "save", "write mapping table")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "FileStore", "save", "close temp file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "FileStore", "save", "replace mapping table")
	}
	return nil
}
