// Package merger folds freshly extracted entity and relation fragments
// into the persistent graph and vector indices. Descriptions, keywords and
// source ids are deduplicated, but relation weights accumulate: re-merging
// the same fragment set adds its weights to the edge again.
package merger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/graphrag-go/graphrag/config"
	"github.com/graphrag-go/graphrag/extractor"
	"github.com/graphrag-go/graphrag/internal/errs"
	"github.com/graphrag-go/graphrag/internal/keyedmutex"
	"github.com/graphrag-go/graphrag/model"
	"github.com/graphrag-go/graphrag/storage"
)

// Generate invokes a generator model, used here only to re-summarize an
// entity's description once it grows past the configured thresholds.
type Generate func(ctx context.Context, system, user string) (string, error)

// Embed invokes an embedder, order-preserving over texts.
type Embed func(ctx context.Context, texts []string) ([][]float32, error)

// Tokenizer counts tokens, used to decide when a description needs
// re-summarizing and to cap the summary's own length.
type Tokenizer interface {
	Count(text string) int
}

// Options parametrizes merge behavior. Zero summary-token fields fall back
// to the defaults below; the other fields come from config.Config.
type Options struct {
	ForceLLMSummaryOnMerge   int
	SummaryMaxTokens         int
	SummaryLengthRecommended int
	SourceIDsLimitMethod     config.SourceIDLimitPolicy
	MaxSourceIDsPerEntity    int
	MaxSourceIDsPerRelation  int
}

const (
	defaultSummaryMaxTokens         = 1200
	defaultSummaryLengthRecommended = 500
)

// Merger folds extraction fragments into the graph and vector stores.
// Every method is safe for concurrent use across distinct keys; calls
// targeting the same entity name or edge pair are serialized internally.
type Merger struct {
	generate Generate
	embed    Embed
	tok      Tokenizer

	opts Options

	graph        *storage.GraphStore
	entitiesVDB  *storage.VectorStore
	relationsVDB *storage.VectorStore

	keys *keyedmutex.Map

	logger *slog.Logger
}

// Stores bundles the backends a Merger mutates.
type Stores struct {
	Graph        *storage.GraphStore
	EntitiesVDB  *storage.VectorStore
	RelationsVDB *storage.VectorStore
}

// New builds a Merger. generate may be nil if re-summarization never
// triggers (callers whose corpora stay under the thresholds).
func New(generate Generate, embed Embed, tok Tokenizer, stores Stores, opts Options, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SummaryMaxTokens == 0 {
		opts.SummaryMaxTokens = defaultSummaryMaxTokens
	}
	if opts.SummaryLengthRecommended == 0 {
		opts.SummaryLengthRecommended = defaultSummaryLengthRecommended
	}
	if opts.SourceIDsLimitMethod == "" {
		opts.SourceIDsLimitMethod = config.SourceIDPolicyFIFO
	}
	return &Merger{
		generate:     generate,
		embed:        embed,
		tok:          tok,
		opts:         opts,
		graph:        stores.Graph,
		entitiesVDB:  stores.EntitiesVDB,
		relationsVDB: stores.RelationsVDB,
		keys:         keyedmutex.New(),
		logger:       logger,
	}
}

// MergeEntity folds fragments for a single entity name into the graph and
// entities vector index. Callers pass every fragment produced for this
// entity name by the current batch; Merger itself handles serialization
// against other concurrent merges of the same name.
func (m *Merger) MergeEntity(ctx context.Context, name string, fragments []extractor.EntityFragment) error {
	if len(fragments) == 0 {
		return nil
	}

	unlock := m.keys.Lock(name)
	defer unlock()

	existing, hadExisting := m.graph.GetNode(name)

	descriptions := dedupDescriptions(existing, fragments)
	description, err := m.resolveDescription(ctx, descriptions)
	if err != nil {
		return &errs.StorageError{Backend: "graph_data", Op: "merge_entity", Cause: err}
	}

	sourceIDs := mergeSourceIDs(existingSourceIDs(existing, hadExisting), fragmentSourceIDs(fragments), m.opts.SourceIDsLimitMethod, m.opts.MaxSourceIDsPerEntity)

	entityType := fragments[0].EntityType
	if hadExisting && existing.EntityType != "" {
		// entity_type is fixed at first-seen and never overwritten on
		// subsequent merges, even if a later fragment disagrees.
		entityType = existing.EntityType
	}

	node := model.Entity{
		EntityName:  name,
		EntityType:  entityType,
		Description: description,
		FilePath:    existing.FilePath,
	}
	node.SetSourceIDs(sourceIDs)

	m.graph.UpsertNode(node)

	if m.embed != nil {
		vecs, err := m.embed(ctx, []string{description})
		if err != nil {
			return &errs.EmbeddingError{TextCount: 1, Cause: err}
		}
		if len(vecs) == 1 {
			m.entitiesVDB.Upsert(map[string]storage.VectorRecord{
				name: {
					ID:        name,
					Embedding: vecs[0],
					Content:   description,
					Metadata:  model.Metadata{"entity_name": name, "entity_type": node.EntityType},
				},
			})
		}
	}

	m.logger.Info("merger: merged entity", "entity_name", name, "fragments", len(fragments), "source_ids", len(sourceIDs))
	return nil
}

// MergeRelation folds fragments for a single unordered entity pair into
// the graph and relations vector index.
func (m *Merger) MergeRelation(ctx context.Context, a, b string, fragments []extractor.RelationFragment) error {
	if len(fragments) == 0 {
		return nil
	}

	key := model.EdgeKey(a, b)
	unlock := m.keys.Lock(key)
	defer unlock()

	existing, hadExisting := m.graph.GetEdge(a, b)

	weight := 0.0
	if hadExisting {
		weight = existing.Weight
	}
	for _, f := range fragments {
		weight += f.Weight
	}

	descriptions := dedupRelationDescriptions(existing, hadExisting, fragments)
	description := strings.Join(descriptions, " ")

	keywords := mergeKeywords(existing, hadExisting, fragments)

	sourceIDs := mergeSourceIDs(existingRelationSourceIDs(existing, hadExisting), fragmentRelationSourceIDs(fragments), m.opts.SourceIDsLimitMethod, m.opts.MaxSourceIDsPerRelation)

	rel := model.Relation{
		SrcID:       a,
		TgtID:       b,
		Weight:      weight,
		Description: description,
		Keywords:    keywords,
	}
	rel.SetSourceIDs(sourceIDs)

	m.graph.UpsertEdge(rel)

	if m.embed != nil {
		vecs, err := m.embed(ctx, []string{description})
		if err != nil {
			return &errs.EmbeddingError{TextCount: 1, Cause: err}
		}
		if len(vecs) == 1 {
			m.relationsVDB.Upsert(map[string]storage.VectorRecord{
				key: {
					ID:        key,
					Embedding: vecs[0],
					Content:   description,
					Metadata:  model.Metadata{"src_id": a, "tgt_id": b, "keywords": keywords},
				},
			})
		}
	}

	m.logger.Info("merger: merged relation", "src_id", a, "tgt_id", b, "fragments", len(fragments), "weight", weight)
	return nil
}

// resolveDescription joins descriptions with a single space, replacing
// the join with an LLM summary when the fragment count or joined token
// count crosses the configured thresholds.
func (m *Merger) resolveDescription(ctx context.Context, descriptions []string) (string, error) {
	joined := strings.Join(descriptions, " ")

	needsSummary := len(descriptions) >= m.opts.ForceLLMSummaryOnMerge
	if !needsSummary && m.tok != nil {
		needsSummary = m.tok.Count(joined) >= m.opts.SummaryMaxTokens
	}
	if !needsSummary || m.generate == nil {
		return joined, nil
	}

	system := fmt.Sprintf(
		"Summarize the following descriptions of the same entity into one coherent description of at most %d tokens. Preserve every distinct fact.",
		m.opts.SummaryLengthRecommended,
	)
	user := strings.Join(descriptions, "\n")

	summary, err := m.generate(ctx, system, user)
	if err != nil {
		m.logger.Warn("merger: summary generation failed, keeping joined description", "error", err)
		return joined, nil
	}
	return strings.TrimSpace(summary), nil
}

func dedupDescriptions(existing model.Entity, fragments []extractor.EntityFragment) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(d string) {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}

	if existing.Description != "" {
		add(existing.Description)
	}
	for _, f := range fragments {
		add(f.Description)
	}
	return out
}

func dedupRelationDescriptions(existing model.Relation, hadExisting bool, fragments []extractor.RelationFragment) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(d string) {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			return
		}
		seen[d] = true
		out = append(out, d)
	}

	if hadExisting {
		add(existing.Description)
	}
	for _, f := range fragments {
		add(f.Description)
	}
	return out
}

func mergeKeywords(existing model.Relation, hadExisting bool, fragments []extractor.RelationFragment) string {
	seen := make(map[string]bool)
	var out []string

	add := func(raw string) {
		for _, kw := range strings.Split(raw, ",") {
			kw = strings.TrimSpace(kw)
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}

	if hadExisting {
		add(existing.Keywords)
	}
	for _, f := range fragments {
		add(f.Keywords)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}

func existingSourceIDs(existing model.Entity, hadExisting bool) []string {
	if !hadExisting {
		return nil
	}
	return existing.SourceIDs()
}

func existingRelationSourceIDs(existing model.Relation, hadExisting bool) []string {
	if !hadExisting {
		return nil
	}
	return existing.SourceIDs()
}

func fragmentSourceIDs(fragments []extractor.EntityFragment) []string {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.SourceID != "" {
			out = append(out, f.SourceID)
		}
	}
	return out
}

func fragmentRelationSourceIDs(fragments []extractor.RelationFragment) []string {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.SourceID != "" {
			out = append(out, f.SourceID)
		}
	}
	return out
}

// mergeSourceIDs unions existing and incoming ids (deduplicated,
// preserving first-seen order), then applies the overflow policy: FIFO
// drops the oldest ids to make room for the newest; KEEP rejects newest
// ids once the cap is reached, retaining the oldest.
func mergeSourceIDs(existing, incoming []string, policy config.SourceIDLimitPolicy, max int) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	var merged []string

	for _, id := range existing {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}
	for _, id := range incoming {
		if !seen[id] {
			seen[id] = true
			merged = append(merged, id)
		}
	}

	if max <= 0 || len(merged) <= max {
		return merged
	}

	if policy == config.SourceIDPolicyKeep {
		return merged[:max]
	}
	// FIFO: drop oldest, keep the most recently merged ids.
	return merged[len(merged)-max:]
}
