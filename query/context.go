package query

import (
	"encoding/json"

	"github.com/graphrag-go/graphrag/model"
)

// assembledContext is Stage 4's output: the token-budgeted slices that
// will be serialized into the RAG prompt, plus the reference list built
// from retained chunks.
type assembledContext struct {
	Entities   []model.Entity
	Relations  []model.Relation
	Chunks     []model.Chunk
	References []model.Reference
}

// Empty reports whether every slot came back empty, the trigger for the
// reserved fail response.
func (a assembledContext) Empty() bool {
	return len(a.Entities) == 0 && len(a.Relations) == 0 && len(a.Chunks) == 0
}

// assembleContext runs Stage 4: entities and relations are each truncated
// to their own token budget by greedy JSON-serialized-size prefix; chunks
// take whatever headroom remains under max_total_tokens.
func (e *Engine) assembleContext(entities []model.Entity, relations []model.Relation, chunks []model.Chunk, param model.QueryParam) assembledContext {
	entityBudget := unlimitedIfUnset(param.MaxEntityTokens)
	relationBudget := unlimitedIfUnset(param.MaxRelationTokens)

	keptEntities, entityTokens := greedyTokenPrefix(entities, entityBudget, e.tok)
	keptRelations, relationTokens := greedyTokenPrefix(relations, relationBudget, e.tok)

	chunkBudget := unlimitedIfUnset(param.MaxTotalTokens)
	if param.MaxTotalTokens > 0 {
		chunkBudget = param.MaxTotalTokens - entityTokens - relationTokens
		if chunkBudget < 0 {
			chunkBudget = 0
		}
	}
	keptChunks, _ := greedyTokenPrefix(chunks, chunkBudget, e.tok)

	refs := make([]model.Reference, 0, len(keptChunks))
	for i, c := range keptChunks {
		refs = append(refs, model.Reference{ID: i + 1, FilePath: c.FilePath})
	}

	return assembledContext{
		Entities:   keptEntities,
		Relations:  keptRelations,
		Chunks:     keptChunks,
		References: refs,
	}
}

// unlimitedIfUnset maps an unconfigured (zero or negative) budget knob to
// the negative sentinel greedyTokenPrefix treats as "no limit", keeping a
// deliberately-exhausted budget of exactly 0 distinguishable from one that
// was simply never set.
func unlimitedIfUnset(budget int) int {
	if budget <= 0 {
		return -1
	}
	return budget
}

// greedyTokenPrefix keeps items in order until the next one would push the
// running token count (measured over each item's JSON serialization) past
// budget. A negative budget, or a nil tokenizer, means no truncation. A
// budget of exactly 0 means no headroom at all and keeps nothing. For any
// positive budget, the first item is always kept regardless of its own
// size so a single oversized item doesn't empty the slot entirely.
func greedyTokenPrefix[T any](items []T, budget int, tok Tokenizer) ([]T, int) {
	if tok == nil || budget < 0 {
		return items, 0
	}
	if budget == 0 {
		return nil, 0
	}

	out := make([]T, 0, len(items))
	used := 0
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			continue
		}
		n := tok.Count(string(b))
		if used+n > budget && len(out) > 0 {
			break
		}
		out = append(out, it)
		used += n
	}
	return out, used
}
