// Package query implements the retrieval-augmented answer pipeline: a
// keyword elicitation pass, mode-specific retrieval over the graph and
// vector indices, deduplication with optional rerank, token-budgeted
// context assembly, and final generation.
package query

import (
	"context"
	"log/slog"

	"github.com/graphrag-go/graphrag/internal/errs"
	"github.com/graphrag-go/graphrag/model"
	"github.com/graphrag-go/graphrag/storage"
)

// Generate invokes a generator model with a system prompt, prior
// conversation turns, and the final user prompt, returning its raw text
// response. This is the opaque callable boundary the engine never
// resolves to a concrete provider SDK.
type Generate func(ctx context.Context, system string, history []model.Turn, prompt string) (string, error)

// Embed invokes an embedder, order-preserving over texts.
type Embed func(ctx context.Context, texts []string) ([][]float32, error)

// RerankHit is one reranked document's index (into the original docs
// slice passed to Rerank) and relevance score.
type RerankHit struct {
	Index          int
	RelevanceScore float64
}

// Rerank invokes an external cross-encoder reranker over query and docs.
type Rerank func(ctx context.Context, query string, docs []string) ([]RerankHit, error)

// Tokenizer sizes JSON-serialized context against the engine's token
// budgets, and backs the rerank-side chunking windowing.
type Tokenizer interface {
	Count(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

// Stores bundles every backend the engine reads from.
type Stores struct {
	Chunks       *storage.KVStore[*model.Chunk]
	Graph        *storage.GraphStore
	EntitiesVDB  *storage.VectorStore
	RelationsVDB *storage.VectorStore
	ChunksVDB    *storage.VectorStore
}

// RerankAggregation picks how rerank-side chunking folds a document's
// per-window scores back into a single document score.
type RerankAggregation string

const (
	RerankAggregationMax   RerankAggregation = "max"
	RerankAggregationMean  RerankAggregation = "mean"
	RerankAggregationFirst RerankAggregation = "first"
)

// Options carries the engine's defaults, overridden per call by a
// model.QueryParam's non-zero fields.
type Options struct {
	TopK              int
	ChunkTopK         int
	MaxEntityTokens   int
	MaxRelationTokens int
	MaxTotalTokens    int
	CosineThreshold   float64
	MinRerankScore    float64

	MaxTokensPerRerankDoc int
	RerankOverlapTokens   int
	RerankAggregation     RerankAggregation
}

// Engine answers queries against a fixed set of stores and model
// callables.
type Engine struct {
	stores Stores

	generate Generate
	embed    Embed
	rerank   Rerank
	tok      Tokenizer

	opts Options

	logger *slog.Logger
}

// New builds an Engine. rerank may be nil; reranking is then skipped
// regardless of param.EnableRerank.
func New(stores Stores, generate Generate, embed Embed, rerank Rerank, tok Tokenizer, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxTokensPerRerankDoc == 0 {
		opts.MaxTokensPerRerankDoc = 512
	}
	if opts.RerankAggregation == "" {
		opts.RerankAggregation = RerankAggregationMax
	}
	return &Engine{stores: stores, generate: generate, embed: embed, rerank: rerank, tok: tok, opts: opts, logger: logger}
}

// Query runs the full five-stage pipeline and returns the assembled
// answer, or the reserved fail response when retrieval surfaces nothing.
func (e *Engine) Query(ctx context.Context, query string, param model.QueryParam) (*model.QueryResult, error) {
	param = e.withDefaults(param)

	if param.Mode == model.ModeBypass {
		return &model.QueryResult{
			Response: model.FailResponse,
			RawData:  model.RawData{Metadata: model.RawDataMetadata{QueryMode: param.Mode}},
		}, nil
	}

	keywords, err := e.elicitKeywords(ctx, query, param)
	if err != nil {
		return nil, err
	}

	retrieved, err := e.retrieve(ctx, query, keywords, param)
	if err != nil {
		return nil, err
	}

	chunks, err := e.dedupAndRerank(ctx, query, retrieved.Chunks, param)
	if err != nil {
		return nil, err
	}

	assembled := e.assembleContext(retrieved.Entities, retrieved.Relations, chunks, param)
	if assembled.Empty() {
		return &model.QueryResult{
			Response: model.FailResponse,
			RawData: model.RawData{
				Metadata: model.RawDataMetadata{QueryMode: param.Mode, HLKeywords: keywords.HighLevel, LLKeywords: keywords.LowLevel},
			},
		}, nil
	}

	rawData := model.RawData{
		Entities:      assembled.Entities,
		Relationships: assembled.Relations,
		Chunks:        assembled.Chunks,
		References:    assembled.References,
		Metadata:      model.RawDataMetadata{QueryMode: param.Mode, HLKeywords: keywords.HighLevel, LLKeywords: keywords.LowLevel},
	}

	prompt := e.formatPrompt(query, assembled, param)

	if param.OnlyNeedContext {
		return &model.QueryResult{Response: "", Context: prompt, RawData: rawData}, nil
	}

	response, err := e.generate(ctx, e.systemPrompt(param), param.ConversationHistory, prompt)
	if err != nil {
		return nil, &errs.LLMError{Cause: err}
	}

	return &model.QueryResult{Response: response, Context: prompt, RawData: rawData}, nil
}

func (e *Engine) withDefaults(param model.QueryParam) model.QueryParam {
	if param.TopK == 0 {
		param.TopK = e.opts.TopK
	}
	if param.ChunkTopK == 0 {
		param.ChunkTopK = e.opts.ChunkTopK
	}
	if param.MaxEntityTokens == 0 {
		param.MaxEntityTokens = e.opts.MaxEntityTokens
	}
	if param.MaxRelationTokens == 0 {
		param.MaxRelationTokens = e.opts.MaxRelationTokens
	}
	if param.MaxTotalTokens == 0 {
		param.MaxTotalTokens = e.opts.MaxTotalTokens
	}
	if param.MinRerankScore == 0 {
		param.MinRerankScore = e.opts.MinRerankScore
	}
	if param.CosSimThreshold == nil {
		t := e.opts.CosineThreshold
		param.CosSimThreshold = &t
	}
	return param
}
