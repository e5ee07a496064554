// Package storage implements the file-backed reference storage traits:
// a generic key-value store, a cosine-threshold vector store, an
// undirected-graph store, and a document-status store, each persisted as
// a single JSON file under {working_dir}/{namespace}/.
package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/graphrag-go/graphrag/internal/atomicfile"
	"github.com/graphrag-go/graphrag/internal/errs"
)

// KVStore is a generic JSON-object-backed key-value store: docs.json,
// chunks.json, entities_kv.json, relations_kv.json all use this shape,
// parametrized only by the stored value's concrete type and the on-disk
// file name.
type KVStore[T any] struct {
	path string
	name string

	mu    sync.RWMutex
	data  map[string]T
	dirty bool

	logger *slog.Logger
}

// NewKVStore opens (or creates) {workingDir}/{namespace}/{name}.json.
func NewKVStore[T any](workingDir, namespace, name string, logger *slog.Logger) (*KVStore[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := ensureNamespaceDir(workingDir, namespace, name)
	if err != nil {
		return nil, &errs.StorageError{Backend: name, Op: "open", Cause: err}
	}

	s := &KVStore[T]{path: path, name: name, data: make(map[string]T), logger: logger}
	if err := s.load(); err != nil {
		return nil, &errs.StorageError{Backend: name, Op: "load", Cause: err}
	}

	logger.Info("storage: opened kv store", "name", name, "path", path, "count", len(s.data))
	return s, nil
}

func (s *KVStore[T]) load() error {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &s.data)
}

// Get returns the record for id.
func (s *KVStore[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[id]
	return v, ok
}

// GetMany returns records for every id present.
func (s *KVStore[T]) GetMany(ids []string) map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]T, len(ids))
	for _, id := range ids {
		if v, ok := s.data[id]; ok {
			out[id] = v
		}
	}
	return out
}

// All returns every stored record keyed by id.
func (s *KVStore[T]) All() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]T, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Upsert writes id's record, marking the store dirty.
func (s *KVStore[T]) Upsert(id string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = v
	s.dirty = true
}

// Delete removes id, marking the store dirty if it was present.
func (s *KVStore[T]) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; ok {
		delete(s.data, id)
		s.dirty = true
	}
}

// Commit writes the in-memory state to disk atomically if dirty.
func (s *KVStore[T]) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	b, err := json.Marshal(s.data)
	if err != nil {
		return &errs.StorageError{Backend: s.name, Op: "commit", Cause: err}
	}
	if err := atomicfile.Write(s.path, b, 0o600); err != nil {
		return &errs.StorageError{Backend: s.name, Op: "commit", Cause: err}
	}
	s.dirty = false
	s.logger.Info("storage: committed kv store", "name", s.name, "count", len(s.data))
	return nil
}

// Drop clears all records in memory and marks the store dirty.
func (s *KVStore[T]) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]T)
	s.dirty = true
}

func ensureNamespaceDir(workingDir, namespace, name string) (string, error) {
	dir := filepath.Join(workingDir, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}
