package model

import "strings"

// Relation is an undirected graph edge keyed by the unordered pair of its
// endpoint entity names (I4: only one edge record exists per pair,
// regardless of lookup order).
type Relation struct {
	SrcID       string `json:"src_id"`
	TgtID       string `json:"tgt_id"`
	Weight      float64 `json:"weight"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
	SourceID    string `json:"source_id"`
}

// SourceIDs splits SourceID on SourceIDSeparator, dropping empty segments.
func (r *Relation) SourceIDs() []string {
	return splitSourceIDs(r.SourceID)
}

// SetSourceIDs joins ids with SourceIDSeparator into SourceID.
func (r *Relation) SetSourceIDs(ids []string) {
	r.SourceID = strings.Join(ids, SourceIDSeparator)
}

// EdgeKey canonicalizes an unordered entity-name pair into the
// lexicographically sorted "a||b" form used as the graph store's edge key.
func EdgeKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "||" + b
}

// Key returns the canonical edge key for r's endpoints.
func (r *Relation) Key() string {
	return EdgeKey(r.SrcID, r.TgtID)
}
