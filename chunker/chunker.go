// Package chunker splits document content into token-budgeted Chunks,
// either by a sliding token window or by a separator-first pass that
// falls back to token-window subdivision for oversized segments.
package chunker

import (
	"log/slog"
	"strings"

	"github.com/graphrag-go/graphrag/internal/errs"
	"github.com/graphrag-go/graphrag/model"
)

// Tokenizer is the subset of internal/tokenizer.Tokenizer the chunker
// needs, kept as an interface so callers can substitute a stub in tests.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// ChunkFunc splits content belonging to fullDocID into ordered Chunks.
// This is the function-type idiom the rest of the engine's pipeline
// stages (embedder, extractor) are built on: a concrete strategy is
// injected as a value, not selected through a type switch.
type ChunkFunc func(content, fullDocID, filePath string) ([]*model.Chunk, error)

// Options configures a ChunkFunc built by New.
type Options struct {
	ChunkTokens          int
	OverlapTokens        int
	SplitByCharacter     string
	SplitByCharacterOnly bool
}

// New builds a ChunkFunc over tok per opts, validating that overlap is
// strictly smaller than the chunk size (spec: overlap_tokens MUST be
// strictly less than chunk_tokens).
func New(tok Tokenizer, opts Options, logger *slog.Logger) (ChunkFunc, error) {
	if opts.OverlapTokens >= opts.ChunkTokens {
		return nil, errs.NewError("chunker.New", &errs.ConfigurationError{
			Param: "overlap_tokens", Value: opts.OverlapTokens,
		})
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(content, fullDocID, filePath string) ([]*model.Chunk, error) {
		if opts.SplitByCharacter != "" {
			return separatorFirst(tok, opts, content, fullDocID, filePath, logger)
		}
		return tokenWindow(tok, opts.ChunkTokens, opts.OverlapTokens, content, fullDocID, filePath, 0)
	}, nil
}

// tokenWindow emits chunks [i, i+chunkTokens) with stride
// chunkTokens-overlapTokens, decoding and trimming each window. startIndex
// lets separatorFirst continue chunk_order_index across segments.
func tokenWindow(tok Tokenizer, chunkTokens, overlapTokens int, content, fullDocID, filePath string, startIndex int) ([]*model.Chunk, error) {
	tokens := tok.Encode(content)
	if len(tokens) == 0 {
		return nil, nil
	}

	stride := chunkTokens - overlapTokens
	var chunks []*model.Chunk
	idx := startIndex

	for start := 0; start < len(tokens); start += stride {
		end := start + chunkTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		window := tokens[start:end]
		text := strings.TrimSpace(tok.Decode(window))
		if text != "" {
			chunks = append(chunks, model.NewChunk(text, len(window), fullDocID, idx, filePath))
			idx++
		}

		if end >= len(tokens) {
			break
		}
	}

	return chunks, nil
}

// separatorFirst splits content by opts.SplitByCharacter, emitting each
// segment verbatim when it fits within chunkTokens and falling back to
// tokenWindow subdivision otherwise.
func separatorFirst(tok Tokenizer, opts Options, content, fullDocID, filePath string, logger *slog.Logger) ([]*model.Chunk, error) {
	segments := strings.Split(content, opts.SplitByCharacter)
	var chunks []*model.Chunk
	idx := 0

	for _, seg := range segments {
		tokens := tok.Encode(seg)
		if len(tokens) == 0 {
			continue
		}

		if len(tokens) <= opts.ChunkTokens {
			text := strings.TrimSpace(seg)
			if text == "" {
				continue
			}
			chunks = append(chunks, model.NewChunk(text, len(tokens), fullDocID, idx, filePath))
			idx++
			continue
		}

		if opts.SplitByCharacterOnly {
			return nil, &errs.ChunkTokenLimitExceeded{Tokens: len(tokens), Limit: opts.ChunkTokens}
		}

		logger.Warn("chunker: segment exceeds chunk_tokens, falling back to token-window subdivision",
			"segment_tokens", len(tokens), "chunk_tokens", opts.ChunkTokens)

		sub, err := tokenWindow(tok, opts.ChunkTokens, opts.OverlapTokens, seg, fullDocID, filePath, idx)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, sub...)
		idx += len(sub)
	}

	return chunks, nil
}

// ClampOverlapForRerank clamps overlapTokens to maxTokens-1 when the
// reranker's per-doc token cap is smaller than the configured overlap,
// logging the clamp rather than silently reducing it. Used only by the
// rerank-side chunking variant (query engine stage 3), never by the
// ingestion chunker.
func ClampOverlapForRerank(overlapTokens, maxTokens int, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens > 0 && overlapTokens >= maxTokens {
		clamped := maxTokens - 1
		if clamped < 0 {
			clamped = 0
		}
		logger.Warn("chunker: clamping overlap for rerank chunking",
			"overlap_tokens", overlapTokens, "max_tokens_per_doc", maxTokens, "clamped_to", clamped)
		return clamped
	}
	return overlapTokens
}
