package query

import (
	"context"
	"sort"

	"github.com/graphrag-go/graphrag/model"
)

// retrieval is Stage 2's output: the candidate material gathered for this
// mode, before dedup/rerank or token budgeting.
type retrieval struct {
	Entities  []model.Entity
	Relations []model.Relation
	Chunks    []model.Chunk
}

// retrieve runs Stage 2: the mode-specific entity/relation/chunk fetch
// table from the query engine's mode matrix.
func (e *Engine) retrieve(ctx context.Context, query string, kw keywordSet, param model.QueryParam) (retrieval, error) {
	wantEntities, wantRelations, chunksDirect, chunksViaEntity := modeFetchPlan(param.Mode)

	var out retrieval

	if !wantEntities && !chunksDirect {
		return out, nil
	}

	var embedding []float32
	if e.embed != nil && (wantEntities || chunksDirect) {
		vecs, err := e.embed(ctx, []string{kw.Retrieval})
		if err != nil {
			return out, err
		}
		if len(vecs) == 1 {
			embedding = vecs[0]
		}
	}

	if wantEntities {
		out.Entities = e.searchEntities(embedding, param)
	}

	if wantRelations && len(out.Entities) > 0 {
		out.Relations = e.searchRelations(out.Entities)
	}

	if chunksViaEntity && len(out.Entities) > 0 {
		out.Chunks = append(out.Chunks, e.chunksViaEntitySourceIDs(out.Entities)...)
	}

	if chunksDirect {
		out.Chunks = append(out.Chunks, e.searchChunksDirect(embedding, param)...)
	}

	return out, nil
}

// modeFetchPlan reads off the query engine's mode matrix: which of
// entities, relations, chunks-direct, and chunks-via-entity this mode
// consults.
func modeFetchPlan(mode model.Mode) (entities, relations, chunksDirect, chunksViaEntity bool) {
	switch mode {
	case model.ModeNaive:
		return false, false, true, false
	case model.ModeLocal:
		return true, false, false, true
	case model.ModeGlobal:
		return true, true, false, false
	case model.ModeHybrid:
		return true, true, false, true
	case model.ModeMix:
		return true, true, true, true
	default:
		return false, false, false, false
	}
}

func (e *Engine) searchEntities(embedding []float32, param model.QueryParam) []model.Entity {
	if embedding == nil || e.stores.EntitiesVDB == nil {
		return nil
	}

	threshold := 0.0
	if param.CosSimThreshold != nil {
		threshold = *param.CosSimThreshold
	}

	hits := e.stores.EntitiesVDB.Query(embedding, param.TopK, threshold)

	names := make([]string, 0, len(hits))
	nodes := make(map[string]model.Entity, len(hits))
	for _, hit := range hits {
		name := hit.Record.Metadata.EntityName()
		if name == "" {
			continue
		}
		node, ok := e.stores.Graph.GetNode(name)
		if !ok {
			continue
		}
		names = append(names, name)
		nodes[name] = node
	}

	ordered := e.stores.Graph.NodesByDegreeDesc(names)
	out := make([]model.Entity, 0, len(ordered))
	for _, name := range ordered {
		out = append(out, nodes[name])
	}
	return out
}

func (e *Engine) searchRelations(entities []model.Entity) []model.Relation {
	names := make([]string, len(entities))
	for i, ent := range entities {
		names[i] = ent.EntityName
	}

	rels := e.stores.Graph.EdgesIncident(names)
	sort.SliceStable(rels, func(i, j int) bool {
		di := e.stores.Graph.EdgeDegree(rels[i].SrcID, rels[i].TgtID)
		dj := e.stores.Graph.EdgeDegree(rels[j].SrcID, rels[j].TgtID)
		if di != dj {
			return di > dj
		}
		return rels[i].Weight > rels[j].Weight
	})
	return rels
}

func (e *Engine) chunksViaEntitySourceIDs(entities []model.Entity) []model.Chunk {
	if e.stores.Chunks == nil {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, ent := range entities {
		for _, id := range ent.SourceIDs() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	out := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := e.stores.Chunks.Get(id); ok {
			out = append(out, *c)
		}
	}
	return out
}

func (e *Engine) searchChunksDirect(embedding []float32, param model.QueryParam) []model.Chunk {
	if embedding == nil || e.stores.ChunksVDB == nil || e.stores.Chunks == nil {
		return nil
	}

	threshold := 0.0
	if param.CosSimThreshold != nil {
		threshold = *param.CosSimThreshold
	}

	hits := e.stores.ChunksVDB.Query(embedding, param.ChunkTopK, threshold)

	out := make([]model.Chunk, 0, len(hits))
	for _, hit := range hits {
		if c, ok := e.stores.Chunks.Get(hit.Record.ID); ok {
			out = append(out, *c)
		}
	}
	return out
}
