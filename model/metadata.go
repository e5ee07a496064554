package model

import (
	"encoding/json"
	"errors"

	"github.com/graphrag-go/graphrag/internal/errs"
)

// Metadata carries a vector record's join key back to the graph:
// entity_name for the entities index, src_id/tgt_id for the relations
// index, doc_id for the chunks index.
type Metadata map[string]interface{}

// Marshal converts Metadata to JSON bytes, for the file-backed vector
// store's on-disk representation.
func (m Metadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal converts JSON bytes, or another Metadata value, into m.
func (m *Metadata) Unmarshal(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}

	if s, ok := value.(Metadata); ok {
		*m = s
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errs.NewError("metadata.Unmarshal", errors.New("type assertion to []byte failed"))
	}

	return json.Unmarshal(b, m)
}

// EntityName returns the "entity_name" key as a string, for entities-index
// records.
func (m Metadata) EntityName() string {
	v, _ := m["entity_name"].(string)
	return v
}

// SrcTgt returns the "src_id"/"tgt_id" keys as strings, for
// relations-index records.
func (m Metadata) SrcTgt() (string, string) {
	src, _ := m["src_id"].(string)
	tgt, _ := m["tgt_id"].(string)
	return src, tgt
}

// DocID returns the "doc_id" key as a string, for chunks-index records.
func (m Metadata) DocID() string {
	v, _ := m["doc_id"].(string)
	return v
}
