package storage

import (
	"log/slog"

	"github.com/graphrag-go/graphrag/model"
)

// DocStatusStore is the file-backed reference implementation of the
// doc-status trait: a thin, status-aware view over a KVStore of
// documents keyed by doc_id.
type DocStatusStore struct {
	kv     *KVStore[*model.Document]
	logger *slog.Logger
}

// NewDocStatusStore opens (or creates) {workingDir}/{namespace}/doc_status.json.
func NewDocStatusStore(workingDir, namespace string, logger *slog.Logger) (*DocStatusStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kv, err := NewKVStore[*model.Document](workingDir, namespace, "doc_status", logger)
	if err != nil {
		return nil, err
	}
	return &DocStatusStore{kv: kv, logger: logger}, nil
}

// Get returns the document status record for docID.
func (s *DocStatusStore) Get(docID string) (*model.Document, bool) {
	return s.kv.Get(docID)
}

// Upsert writes doc's status record.
func (s *DocStatusStore) Upsert(doc *model.Document) {
	s.kv.Upsert(doc.DocID, doc)
}

// Delete removes docID's status record.
func (s *DocStatusStore) Delete(docID string) {
	s.kv.Delete(docID)
}

// All returns every tracked document.
func (s *DocStatusStore) All() map[string]*model.Document {
	return s.kv.All()
}

// ByStatus returns every document whose Status equals status.
func (s *DocStatusStore) ByStatus(status model.DocStatus) []*model.Document {
	var out []*model.Document
	for _, doc := range s.kv.All() {
		if doc.Status == status {
			out = append(out, doc)
		}
	}
	return out
}

// IsProcessed reports whether docID exists and is marked processed.
func (s *DocStatusStore) IsProcessed(docID string) bool {
	doc, ok := s.kv.Get(docID)
	return ok && doc.IsProcessed()
}

// MarkProcessing transitions docID to processing, creating the record
// first via newDoc if it does not already exist.
func (s *DocStatusStore) MarkProcessing(docID string, newDoc func() *model.Document) {
	doc, ok := s.kv.Get(docID)
	if !ok {
		doc = newDoc()
	}
	doc.MarkProcessing()
	s.kv.Upsert(docID, doc)
}

// MarkProcessed transitions docID to processed with the given chunk ids.
func (s *DocStatusStore) MarkProcessed(docID string, chunkIDs []string) {
	doc, ok := s.kv.Get(docID)
	if !ok {
		return
	}
	doc.MarkProcessed(chunkIDs)
	s.kv.Upsert(docID, doc)
}

// MarkFailed transitions docID to failed with the given error message.
func (s *DocStatusStore) MarkFailed(docID, errMsg string) {
	doc, ok := s.kv.Get(docID)
	if !ok {
		return
	}
	doc.MarkFailed(errMsg)
	s.kv.Upsert(docID, doc)
}

// Commit writes the in-memory state to disk atomically if dirty.
func (s *DocStatusStore) Commit() error {
	return s.kv.Commit()
}

// Drop clears all records in memory and marks the store dirty.
func (s *DocStatusStore) Drop() {
	s.kv.Drop()
}
