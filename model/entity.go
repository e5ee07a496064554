package model

import "strings"

// SourceIDSeparator joins the chunk ids that contribute to an entity's or
// relation's source_id. It is a single literal token fixed for the life
// of a corpus; changing it invalidates existing source_id strings.
const SourceIDSeparator = "<SEP>"

// Entity is a graph node keyed by entity_name (stored title-case), stable
// across merges.
type Entity struct {
	EntityName  string `json:"entity_name"`
	EntityType  string `json:"entity_type"`
	Description string `json:"description"`
	SourceID    string `json:"source_id"`
	FilePath    string `json:"file_path,omitempty"`
}

// SourceIDs splits SourceID on SourceIDSeparator, dropping empty segments.
func (e *Entity) SourceIDs() []string {
	return splitSourceIDs(e.SourceID)
}

// SetSourceIDs joins ids with SourceIDSeparator into SourceID.
func (e *Entity) SetSourceIDs(ids []string) {
	e.SourceID = strings.Join(ids, SourceIDSeparator)
}

func splitSourceIDs(sourceID string) []string {
	if sourceID == "" {
		return nil
	}
	parts := strings.Split(sourceID, SourceIDSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
