package storage

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/graphrag-go/graphrag/internal/atomicfile"
	"github.com/graphrag-go/graphrag/internal/errs"
	"github.com/graphrag-go/graphrag/model"
)

// VectorRecord is one entry in a vector index: an embedding plus the
// join-key metadata that ties it back to the graph or chunk store.
type VectorRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Content   string         `json:"content,omitempty"`
	Metadata  model.Metadata `json:"metadata,omitempty"`
}

// ScoredRecord is a query hit: a VectorRecord plus its similarity score.
type ScoredRecord struct {
	Record VectorRecord
	Score  float64
}

// VectorStore is the file-backed reference implementation of the vector
// trait, used for the entities, relations, and chunks indices.
type VectorStore struct {
	path string
	name string

	mu    sync.RWMutex
	data  map[string]VectorRecord
	dirty bool

	logger *slog.Logger
}

// NewVectorStore opens (or creates) {workingDir}/{namespace}/{name}.json.
func NewVectorStore(workingDir, namespace, name string, logger *slog.Logger) (*VectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := ensureNamespaceDir(workingDir, namespace, name)
	if err != nil {
		return nil, &errs.StorageError{Backend: name, Op: "open", Cause: err}
	}

	s := &VectorStore{path: path, name: name, data: make(map[string]VectorRecord), logger: logger}
	if err := s.load(); err != nil {
		return nil, &errs.StorageError{Backend: name, Op: "load", Cause: err}
	}
	logger.Info("storage: opened vector store", "name", name, "path", path, "count", len(s.data))
	return s, nil
}

func (s *VectorStore) load() error {
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

// Upsert writes (or replaces) the records in recs, each under its map key.
func (s *VectorStore) Upsert(recs map[string]VectorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range recs {
		s.data[id] = rec
	}
	s.dirty = true
}

// Get returns the record for id.
func (s *VectorStore) Get(id string) (VectorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[id]
	return v, ok
}

// GetMany returns records for every id present.
func (s *VectorStore) GetMany(ids []string) []VectorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VectorRecord, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.data[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Delete removes the named ids, marking the store dirty if any existed.
func (s *VectorStore) Delete(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.data[id]; ok {
			delete(s.data, id)
			s.dirty = true
		}
	}
}

// DeleteByEntity removes every record whose metadata entity_name equals
// name (spec §4.1: entities-index cleanup on orphan).
func (s *VectorStore) DeleteByEntity(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.data {
		if rec.Metadata.EntityName() == name {
			delete(s.data, id)
			s.dirty = true
		}
	}
}

// DeleteByEntityRelation removes every record whose metadata src_id or
// tgt_id equals name (spec §4.1: relations-index cleanup when an edge's
// endpoint is orphaned).
func (s *VectorStore) DeleteByEntityRelation(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.data {
		src, tgt := rec.Metadata.SrcTgt()
		if src == name || tgt == name {
			delete(s.data, id)
			s.dirty = true
		}
	}
}

// Query returns at most topK records scored against embedding by cosine
// similarity, filtered to score >= threshold and sorted descending.
func (s *VectorStore) Query(embedding []float32, topK int, threshold float64) []ScoredRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredRecord, 0, len(s.data))
	for _, rec := range s.data {
		score := cosineSimilarity(embedding, rec.Embedding)
		if score >= threshold {
			scored = append(scored, ScoredRecord{Record: rec, Score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Commit writes the in-memory state to disk atomically if dirty.
func (s *VectorStore) Commit() error {
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
	s.logger.Info("storage: committed vector store", "name", s.name, "count", len(s.data))
	return nil
}

// Drop clears all records in memory and marks the store dirty.
func (s *VectorStore) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]VectorRecord)
	s.dirty = true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
