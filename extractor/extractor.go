// Package extractor mines entity and relation fragments out of chunk text
// by prompting a generator model and parsing its line-oriented response,
// with an optional gleaning pass that asks the model to continue.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/graphrag-go/graphrag/internal/errs"
)

const (
	tupleDelimiter      = "<|#|>"
	completionSentinel  = "<|COMPLETE|>"
	maxEntityNameLength = 256
)

// Generate invokes a generator model with a system and user prompt,
// returning its raw text response. This is the opaque callable boundary:
// the extractor never imports a concrete provider SDK.
type Generate func(ctx context.Context, system, user string) (string, error)

// EntityFragment and RelationFragment are one entity or relation record as
// mined from a single chunk, not yet merged into the graph.
type EntityFragment struct {
	EntityName  string
	EntityType  string
	Description string
	SourceID    string
}

type RelationFragment struct {
	SrcID       string
	TgtID       string
	Weight      float64
	Description string
	Keywords    string
	SourceID    string
}

// Result is one chunk's extracted entities and relations, plus its
// originating chunk id (carried as every fragment's SourceID).
type Result struct {
	Entities  []EntityFragment
	Relations []RelationFragment
}

// Options parametrizes the system prompt.
type Options struct {
	EntityTypes []string
	Language    string
	MaxGleaning int
}

// Extractor mines a Result from one chunk's content via a generator.
type Extractor struct {
	generate Generate
	opts     Options
	logger   *slog.Logger
}

// New builds an Extractor. generate may be nil; Extract then returns an
// empty Result without prompting.
func New(generate Generate, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{generate: generate, opts: opts, logger: logger}
}

// Extract runs the extraction prompt (and up to opts.MaxGleaning follow-up
// "continue extraction" prompts) against chunk, tagging every fragment
// with chunkID as its source.
func (e *Extractor) Extract(ctx context.Context, chunkID, content string) (Result, error) {
	if e.generate == nil {
		return Result{}, nil
	}
	system := e.systemPrompt()

	resp, err := e.generate(ctx, system, content)
	if err != nil {
		return Result{}, &errs.ExtractionError{ChunkID: chunkID, Cause: err}
	}

	result := e.parse(chunkID, resp)

	history := []string{system, content, resp}
	for i := 0; i < e.opts.MaxGleaning; i++ {
		continuePrompt := "continue extraction: there may be more entities or relations to extract from the same text. Use the same format."
		more, err := e.generate(ctx, strings.Join(history, "\n\n"), continuePrompt)
		if err != nil {
			e.logger.Warn("extractor: gleaning pass failed, keeping prior results", "chunk_id", chunkID, "pass", i, "error", err)
			break
		}
		glean := e.parse(chunkID, more)
		result.Entities = append(result.Entities, glean.Entities...)
		result.Relations = append(result.Relations, glean.Relations...)
		history = append(history, continuePrompt, more)
	}

	return result, nil
}

func (e *Extractor) systemPrompt() string {
	return fmt.Sprintf(
		"You are extracting entities and relations from text.\n"+
			"Entity types to consider: %s\n"+
			"Respond in %s.\n"+
			"For each entity, output a line: entity%sentity_name%sentity_type%sdescription\n"+
			"For each relation, output a line: relation%ssrc_id%stgt_id%skeywords%sdescription (append a trailing comma and numeric weight to keywords when known)\n"+
			"When there is nothing further to extract, output the line: %s",
		strings.Join(e.opts.EntityTypes, ", "), e.opts.Language,
		tupleDelimiter, tupleDelimiter, tupleDelimiter,
		tupleDelimiter, tupleDelimiter, tupleDelimiter, tupleDelimiter,
		completionSentinel,
	)
}

func (e *Extractor) parse(chunkID, response string) Result {
	var result Result

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == completionSentinel {
			continue
		}

		fields := strings.Split(line, tupleDelimiter)
		switch {
		case len(fields) == 4 && strings.Contains(strings.ToLower(fields[0]), "entity"):
			frag, ok := parseEntityFields(fields, chunkID)
			if !ok {
				e.logger.Warn("extractor: dropped malformed entity line", "chunk_id", chunkID, "line", line)
				continue
			}
			result.Entities = append(result.Entities, frag)

		case len(fields) == 5 && strings.Contains(strings.ToLower(fields[0]), "relation"):
			frag, ok := parseRelationFields(fields, chunkID)
			if !ok {
				e.logger.Warn("extractor: dropped malformed relation line", "chunk_id", chunkID, "line", line)
				continue
			}
			result.Relations = append(result.Relations, frag)

		default:
			// Lines that don't match either shape are skipped silently;
			// a parse failure in one line never fails the chunk.
		}
	}

	return result
}

func parseEntityFields(fields []string, chunkID string) (EntityFragment, bool) {
	name := normalizeEntityName(fields[1])
	entityType := strings.ToLower(strings.TrimSpace(fields[2]))
	description := strings.TrimSpace(fields[3])

	if name == "" || description == "" {
		return EntityFragment{}, false
	}
	if len(name) > maxEntityNameLength {
		name = name[:maxEntityNameLength]
	}
	if strings.ContainsAny(entityType, "'()<>|/\\") {
		return EntityFragment{}, false
	}

	return EntityFragment{
		EntityName:  name,
		EntityType:  entityType,
		Description: description,
		SourceID:    chunkID,
	}, true
}

func parseRelationFields(fields []string, chunkID string) (RelationFragment, bool) {
	src := normalizeEntityName(fields[1])
	tgt := normalizeEntityName(fields[2])
	keywords := normalizeKeywords(fields[3])
	description := strings.TrimSpace(fields[4])

	if src == "" || tgt == "" || src == tgt {
		return RelationFragment{}, false
	}

	weight := 1.0
	if w, rest, ok := extractTrailingWeight(keywords); ok {
		weight = w
		keywords = rest
	}

	return RelationFragment{
		SrcID:       src,
		TgtID:       tgt,
		Weight:      weight,
		Description: description,
		Keywords:    keywords,
		SourceID:    chunkID,
	}, true
}

// normalizeEntityName strips surrounding quotes and collapses whitespace,
// then title-cases the result so the same entity mentioned with varying
// capitalization merges to one graph node.
func normalizeEntityName(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, `"'`)
	s = strings.Join(strings.Fields(s), " ")
	return titleCase(s)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// normalizeKeywords replaces fullwidth commas with ASCII commas.
func normalizeKeywords(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), "，", ",")
}

// extractTrailingWeight looks for a trailing numeric token in a
// comma-separated keywords field, as the extraction prompt may append the
// edge weight there. On success it returns the weight and the keywords
// field with that trailing token removed.
func extractTrailingWeight(keywords string) (weight float64, rest string, ok bool) {
	parts := strings.Split(keywords, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	w, err := strconv.ParseFloat(last, 64)
	if err != nil {
		return 0, keywords, false
	}
	rest = strings.TrimSpace(strings.Join(parts[:len(parts)-1], ","))
	return w, rest, true
}
