// Package graphrag wires the chunker, extractor, merger, query engine and
// deletion coordinator into a single ingestion/query surface backed by the
// file-backed reference storage implementations.
package graphrag

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/graphrag-go/graphrag/chunker"
	"github.com/graphrag-go/graphrag/config"
	"github.com/graphrag-go/graphrag/deletion"
	"github.com/graphrag-go/graphrag/extractor"
	"github.com/graphrag-go/graphrag/internal/errs"
	"github.com/graphrag-go/graphrag/internal/telemetry"
	"github.com/graphrag-go/graphrag/internal/tokenizer"
	"github.com/graphrag-go/graphrag/merger"
	"github.com/graphrag-go/graphrag/model"
	"github.com/graphrag-go/graphrag/query"
	"github.com/graphrag-go/graphrag/storage"
)

// Generate invokes a completion-style generator with a system and user
// prompt, used by extraction and merge re-summarization.
type Generate func(ctx context.Context, system, user string) (string, error)

// ChatGenerate invokes a chat-style generator with a system prompt, prior
// turns, and the final prompt, used by query generation.
type ChatGenerate func(ctx context.Context, system string, history []model.Turn, prompt string) (string, error)

// Embed invokes an embedder, order-preserving over texts.
type Embed func(ctx context.Context, texts []string) ([][]float32, error)

// GraphRAG bundles every storage backend and pipeline stage into one
// ingestion/query surface.
type GraphRAG struct {
	cfg    config.Config
	logger *slog.Logger

	docStatus    *storage.DocStatusStore
	chunksKV     *storage.KVStore[*model.Chunk]
	chunksVDB    *storage.VectorStore
	entitiesVDB  *storage.VectorStore
	relationsVDB *storage.VectorStore
	graph        *storage.GraphStore
	llmCache     *storage.LLMCacheStore

	chunkFn   chunker.ChunkFunc
	extractor *extractor.Extractor
	merger    *merger.Merger
	query     *query.Engine
	deleter   *deletion.Coordinator

	embed Embed

	// asyncSem bounds max_async concurrent LLM/embedding calls across
	// every in-flight Insert, not per call: InsertAll runs documents
	// concurrently too, and each document's extraction/merge goroutines
	// acquire from this same semaphore instead of each getting their own
	// independent budget.
	asyncSem *semaphore.Weighted
}

// New constructs a GraphRAG from cfg, opening or creating every file-backed
// store under cfg.WorkingDir/cfg.Namespace. generate and chatGenerate may
// be nil in tests that never exercise merging or generation; with a nil
// generate, Insert stores and embeds chunks without extracting entities or
// relations. embed is required for any indexed retrieval. rerank may be nil.
func New(cfg config.Config, generate Generate, chatGenerate ChatGenerate, embed Embed, rerank query.Rerank, logger *slog.Logger) (*GraphRAG, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(telemetry.NewPrettyHandler(os.Stdout, telemetry.PrettyHandlerOptions{
			SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo},
		}))
	}

	tok, err := tokenizer.Default()
	if err != nil {
		return nil, errs.NewError("graphrag.New", err)
	}

	docStatus, err := storage.NewDocStatusStore(cfg.WorkingDir, cfg.Namespace, logger)
	if err != nil {
		return nil, err
	}
	chunksKV, err := storage.NewKVStore[*model.Chunk](cfg.WorkingDir, cfg.Namespace, "chunks", logger)
	if err != nil {
		return nil, err
	}
	chunksVDB, err := storage.NewVectorStore(cfg.WorkingDir, cfg.Namespace, "chunks_vdb", logger)
	if err != nil {
		return nil, err
	}
	entitiesVDB, err := storage.NewVectorStore(cfg.WorkingDir, cfg.Namespace, "entities_vdb", logger)
	if err != nil {
		return nil, err
	}
	relationsVDB, err := storage.NewVectorStore(cfg.WorkingDir, cfg.Namespace, "relations_vdb", logger)
	if err != nil {
		return nil, err
	}
	graphStore, err := storage.NewGraphStore(cfg.WorkingDir, cfg.Namespace, logger)
	if err != nil {
		return nil, err
	}

	var llmCache *storage.LLMCacheStore
	if cfg.EnableLLMCache {
		llmCache, err = storage.NewLLMCacheStore(cfg.WorkingDir, cfg.Namespace, logger)
		if err != nil {
			return nil, err
		}
	}

	chunkFn, err := chunker.New(tok, chunker.Options{
		ChunkTokens:          cfg.ChunkTokenSize,
		OverlapTokens:        cfg.ChunkOverlapTokenSize,
		SplitByCharacter:     cfg.SplitByCharacter,
		SplitByCharacterOnly: cfg.SplitByCharacterOnly,
	}, logger)
	if err != nil {
		return nil, err
	}

	cachedGenerate := withCache(generate, llmCache)

	ex := extractor.New(extractor.Generate(cachedGenerate), extractor.Options{
		EntityTypes: cfg.EntityTypes,
		Language:    cfg.Language,
		MaxGleaning: cfg.MaxGleaning,
	}, logger)

	mg := merger.New(merger.Generate(cachedGenerate), merger.Embed(embed), tok, merger.Stores{
		Graph: graphStore, EntitiesVDB: entitiesVDB, RelationsVDB: relationsVDB,
	}, merger.Options{
		ForceLLMSummaryOnMerge:  cfg.ForceLLMSummaryOnMerge,
		SourceIDsLimitMethod:    cfg.SourceIDsLimitMethod,
		MaxSourceIDsPerEntity:   cfg.MaxSourceIDsPerEntity,
		MaxSourceIDsPerRelation: cfg.MaxSourceIDsPerRelation,
	}, logger)

	qe := query.New(query.Stores{
		Chunks: chunksKV, Graph: graphStore, EntitiesVDB: entitiesVDB, RelationsVDB: relationsVDB, ChunksVDB: chunksVDB,
	}, query.Generate(chatGenerate), query.Embed(embed), rerank, tok, query.Options{
		TopK: cfg.TopK, ChunkTopK: cfg.ChunkTopK,
		MaxEntityTokens: cfg.MaxEntityTokens, MaxRelationTokens: cfg.MaxRelationTokens, MaxTotalTokens: cfg.MaxTotalTokens,
		CosineThreshold: cfg.CosineThreshold, MinRerankScore: cfg.MinRerankScore,
	}, logger)

	del := deletion.New(deletion.Stores{
		DocStatus: docStatus, Chunks: chunksKV, ChunksVDB: chunksVDB,
		Graph: graphStore, EntitiesVDB: entitiesVDB, RelationsVDB: relationsVDB,
	}, logger)

	return &GraphRAG{
		cfg: cfg, logger: logger,
		docStatus: docStatus, chunksKV: chunksKV, chunksVDB: chunksVDB,
		entitiesVDB: entitiesVDB, relationsVDB: relationsVDB, graph: graphStore, llmCache: llmCache,
		chunkFn: chunkFn, extractor: ex, merger: mg, query: qe, deleter: del,
		embed:    embed,
		asyncSem: semaphore.NewWeighted(int64(maxAsync(cfg.MaxAsync))),
	}, nil
}

// withCache wraps generate so identical (system, prompt) pairs are served
// from the LLM cache, when one is configured.
func withCache(generate Generate, cache *storage.LLMCacheStore) Generate {
	if generate == nil || cache == nil {
		return generate
	}
	return func(ctx context.Context, system, prompt string) (string, error) {
		if resp, ok := cache.Lookup(system, prompt); ok {
			return resp, nil
		}
		resp, err := generate(ctx, system, prompt)
		if err != nil {
			return "", err
		}
		cache.Store(system, prompt, resp)
		return resp, nil
	}
}

// Insert runs the full ingestion pipeline for one document: chunk, embed,
// upsert chunks, extract, merge into the graph, then transition the
// document to processed and commit every mutated store. Re-ingesting a
// document whose content already processed successfully is a no-op (I6).
func (g *GraphRAG) Insert(ctx context.Context, content, filePath string) error {
	runID := uuid.NewString()
	doc := model.NewDocument(content, filePath)
	logger := g.logger.With("run_id", runID, "doc_id", doc.DocID)

	if existing, ok := g.docStatus.Get(doc.DocID); ok && existing.IsProcessed() {
		logger.Info("graphrag: document already processed, skipping")
		return nil
	}

	g.docStatus.MarkProcessing(doc.DocID, func() *model.Document { return doc })

	if err := ctx.Err(); err != nil {
		return &errs.CancelledError{Operation: "insert " + runID}
	}

	chunks, err := g.chunkFn(content, doc.DocID, filePath)
	if err != nil {
		logger.Error("graphrag: chunking failed", "error", err)
		g.docStatus.MarkFailed(doc.DocID, err.Error())
		return err
	}

	if g.embed != nil && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vecs, err := g.embed(ctx, texts)
		if err != nil {
			g.docStatus.MarkFailed(doc.DocID, err.Error())
			return &errs.EmbeddingError{TextCount: len(texts), Cause: err}
		}
		for i, c := range chunks {
			g.chunksKV.Upsert(c.ChunkID, c)
			if i < len(vecs) {
				g.chunksVDB.Upsert(map[string]storage.VectorRecord{
					c.ChunkID: {ID: c.ChunkID, Embedding: vecs[i], Content: c.Content, Metadata: model.Metadata{"doc_id": doc.DocID}},
				})
			}
		}
	} else {
		for _, c := range chunks {
			g.chunksKV.Upsert(c.ChunkID, c)
		}
	}

	results, err := g.extractChunks(ctx, chunks)
	if err != nil {
		logger.Error("graphrag: extraction failed", "error", err)
		g.docStatus.MarkFailed(doc.DocID, err.Error())
		return err
	}

	if err := g.mergeExtractions(ctx, results); err != nil {
		logger.Error("graphrag: merge failed", "error", err)
		g.docStatus.MarkFailed(doc.DocID, err.Error())
		return err
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ChunkID
	}
	g.docStatus.MarkProcessed(doc.DocID, chunkIDs)
	logger.Info("graphrag: document processed", "chunks", len(chunkIDs))

	return g.commitAll()
}

// extractChunks runs extraction over every chunk, bounded by max_async
// concurrent LLM calls shared across every document currently being
// inserted (g.asyncSem), not just this call's own chunks. A single
// chunk's extraction failure is logged and contained (errs.ExtractionError
// never fails the whole document); any other error (e.g. context
// cancellation) aborts the batch.
func (g *GraphRAG) extractChunks(ctx context.Context, chunks []*model.Chunk) ([]extractor.Result, error) {
	results := make([]extractor.Result, len(chunks))

	group, gctx := errgroup.WithContext(ctx)

	for i, c := range chunks {
		i, c := i, c
		group.Go(func() error {
			if err := g.asyncSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer g.asyncSem.Release(1)

			res, err := g.extractor.Extract(gctx, c.ChunkID, c.Content)
			if err != nil {
				if _, ok := err.(*errs.ExtractionError); ok {
					g.logger.Warn("graphrag: extraction failed for chunk, continuing", "chunk_id", c.ChunkID, "error", err)
					return nil
				}
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// mergeExtractions groups fragments by entity name / edge key across every
// chunk's extraction result, then merges each group, bounded by the same
// shared g.asyncSem extractChunks uses. Per-key serialization inside
// Merger makes concurrent merges of the same entity or edge safe even
// though they never occur here (each key is merged exactly once per call).
func (g *GraphRAG) mergeExtractions(ctx context.Context, results []extractor.Result) error {
	entityFragments := make(map[string][]extractor.EntityFragment)
	relationFragments := make(map[string][2]string)
	relationFragmentsByKey := make(map[string][]extractor.RelationFragment)

	for _, res := range results {
		for _, f := range res.Entities {
			entityFragments[f.EntityName] = append(entityFragments[f.EntityName], f)
		}
		for _, f := range res.Relations {
			key := model.EdgeKey(f.SrcID, f.TgtID)
			relationFragments[key] = [2]string{f.SrcID, f.TgtID}
			relationFragmentsByKey[key] = append(relationFragmentsByKey[key], f)
		}
	}

	group, gctx := errgroup.WithContext(ctx)

	for name, frags := range entityFragments {
		name, frags := name, frags
		group.Go(func() error {
			if err := g.asyncSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer g.asyncSem.Release(1)
			return g.merger.MergeEntity(gctx, name, frags)
		})
	}
	for key, frags := range relationFragmentsByKey {
		endpoints := relationFragments[key]
		frags := frags
		group.Go(func() error {
			if err := g.asyncSem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer g.asyncSem.Release(1)
			return g.merger.MergeRelation(gctx, endpoints[0], endpoints[1], frags)
		})
	}

	return group.Wait()
}

func (g *GraphRAG) commitAll() error {
	for _, commit := range []func() error{
		g.docStatus.Commit, g.chunksKV.Commit, g.chunksVDB.Commit,
		g.entitiesVDB.Commit, g.relationsVDB.Commit, g.graph.Commit,
	} {
		if err := commit(); err != nil {
			return err
		}
	}
	if g.llmCache != nil {
		if err := g.llmCache.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// InsertDocument is a convenience wrapper reading filePath and inserting
// its content.
func (g *GraphRAG) InsertDocument(ctx context.Context, filePath string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return g.Insert(ctx, string(content), filePath)
}

// InsertAll ingests every document concurrently, bounded by
// max_parallel_insert. The first error encountered is returned; other
// documents already in flight still run to completion.
func (g *GraphRAG) InsertAll(ctx context.Context, docs []struct{ Content, FilePath string }) error {
	var group errgroup.Group
	group.SetLimit(maxAsync(g.cfg.MaxParallelInsert))

	var mu sync.Mutex
	var firstErr error

	for _, d := range docs {
		d := d
		group.Go(func() error {
			if err := g.Insert(ctx, d.Content, d.FilePath); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return err
			}
			return nil
		})
	}

	_ = group.Wait()
	return firstErr
}

// Query runs the query engine's retrieval-augmented pipeline.
func (g *GraphRAG) Query(ctx context.Context, queryText string, param model.QueryParam) (*model.QueryResult, error) {
	return g.query.Query(ctx, queryText, param)
}

// Delete runs the deletion coordinator for docID.
func (g *GraphRAG) Delete(ctx context.Context, docID string, opts deletion.Options) (*deletion.Result, error) {
	return g.deleter.Delete(ctx, docID, opts)
}

// KnowledgeSubgraph resolves labelFilter against every node's entity type,
// takes up to the first 10 matches as BFS seeds, then delegates to the
// graph store's bounded traversal. An empty labelFilter matches every
// node.
func (g *GraphRAG) KnowledgeSubgraph(labelFilter string, maxDepth, maxNodes int) (nodes []model.Entity, edges []model.Relation, truncated bool) {
	const maxSeeds = 10
	all := g.graph.AllNodes()
	names := make([]string, 0, len(all))
	for name, node := range all {
		if labelFilter == "" || node.EntityType == labelFilter {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > maxSeeds {
		names = names[:maxSeeds]
	}
	return g.graph.KnowledgeSubgraph(names, maxDepth, maxNodes)
}

func maxAsync(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
