package query

import (
	"context"
	"sort"

	"github.com/graphrag-go/graphrag/chunker"
	"github.com/graphrag-go/graphrag/model"
)

const defaultMinRerankScore = 0.1

// dedupAndRerank runs Stage 3: dedup candidate chunks by chunk_id, then
// optionally rerank them against query.
func (e *Engine) dedupAndRerank(ctx context.Context, query string, candidates []model.Chunk, param model.QueryParam) ([]model.Chunk, error) {
	deduped := dedupChunksByID(candidates)

	if !param.EnableRerank || e.rerank == nil || len(deduped) <= 1 {
		return deduped, nil
	}

	minScore := param.MinRerankScore
	if minScore == 0 {
		minScore = e.opts.MinRerankScore
	}
	if minScore == 0 {
		minScore = defaultMinRerankScore
	}

	scores, err := e.rerankChunks(ctx, query, deduped)
	if err != nil {
		e.logger.Warn("query: rerank failed, preserving original order", "error", err)
		return deduped, nil
	}

	type scoredChunk struct {
		chunk model.Chunk
		score float64
	}
	scored := make([]scoredChunk, 0, len(deduped))
	for i, c := range deduped {
		if scores[i] >= minScore {
			scored = append(scored, scoredChunk{chunk: c, score: scores[i]})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	out := make([]model.Chunk, len(scored))
	for i, sc := range scored {
		out[i] = sc.chunk
	}
	return out, nil
}

func dedupChunksByID(chunks []model.Chunk) []model.Chunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.ChunkID] {
			continue
		}
		seen[c.ChunkID] = true
		out = append(out, c)
	}
	return out
}

// rerankChunks scores each of docs against query, one score per document,
// by windowing any document that exceeds the reranker's per-call token
// budget and aggregating its windows' scores back into one.
func (e *Engine) rerankChunks(ctx context.Context, query string, docs []model.Chunk) ([]float64, error) {
	if e.tok == nil {
		return e.rerankFlat(ctx, query, docs)
	}

	overlap := chunker.ClampOverlapForRerank(e.opts.RerankOverlapTokens, e.opts.MaxTokensPerRerankDoc, e.logger)
	windowFn, err := chunker.New(e.tok, chunker.Options{
		ChunkTokens:   e.opts.MaxTokensPerRerankDoc,
		OverlapTokens: overlap,
	}, e.logger)
	if err != nil {
		return nil, err
	}

	var windowTexts []string
	owner := make([]int, 0) // owner[i] = index into docs that windowTexts[i] belongs to

	for i, doc := range docs {
		windows, err := windowFn(doc.Content, doc.FullDocID, doc.FilePath)
		if err != nil {
			return nil, err
		}
		if len(windows) == 0 {
			windowTexts = append(windowTexts, doc.Content)
			owner = append(owner, i)
			continue
		}
		for _, w := range windows {
			windowTexts = append(windowTexts, w.Content)
			owner = append(owner, i)
		}
	}

	hits, err := e.rerank(ctx, query, windowTexts)
	if err != nil {
		return nil, err
	}

	windowScores := make([]float64, len(windowTexts))
	for _, hit := range hits {
		if hit.Index >= 0 && hit.Index < len(windowScores) {
			windowScores[hit.Index] = hit.RelevanceScore
		}
	}

	return aggregateWindowScores(owner, windowScores, len(docs), e.opts.RerankAggregation), nil
}

func (e *Engine) rerankFlat(ctx context.Context, query string, docs []model.Chunk) ([]float64, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	hits, err := e.rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(docs))
	for _, hit := range hits {
		if hit.Index >= 0 && hit.Index < len(scores) {
			scores[hit.Index] = hit.RelevanceScore
		}
	}
	return scores, nil
}

// aggregateWindowScores folds each document's window scores (owner[i]
// names which document windowScores[i] belongs to) into exactly one score
// per document, per the configured aggregation method.
func aggregateWindowScores(owner []int, windowScores []float64, docCount int, method RerankAggregation) []float64 {
	sums := make([]float64, docCount)
	counts := make([]int, docCount)
	maxes := make([]float64, docCount)
	firsts := make([]float64, docCount)
	seen := make([]bool, docCount)

	for i, docIdx := range owner {
		s := windowScores[i]
		sums[docIdx] += s
		counts[docIdx]++
		if !seen[docIdx] {
			firsts[docIdx] = s
			maxes[docIdx] = s
			seen[docIdx] = true
		} else if s > maxes[docIdx] {
			maxes[docIdx] = s
		}
	}

	out := make([]float64, docCount)
	for i := 0; i < docCount; i++ {
		switch method {
		case RerankAggregationMean:
			if counts[i] > 0 {
				out[i] = sums[i] / float64(counts[i])
			}
		case RerankAggregationFirst:
			out[i] = firsts[i]
		default:
			out[i] = maxes[i]
		}
	}
	return out
}
