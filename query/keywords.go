package query

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/graphrag-go/graphrag/model"
)

// keywordSet is Stage 1's output: the elicited keyword lists plus the
// composed retrieval string used to embed for vector search.
type keywordSet struct {
	HighLevel []string
	LowLevel  []string
	Retrieval string
}

const keywordExtractionSystemPrompt = `Extract high-level (thematic) and low-level (specific entity/term) keywords from the user's query.
Respond with a single JSON object of the form {"high_level_keywords": [...], "low_level_keywords": [...]} and nothing else.`

// elicitKeywords runs Stage 1. If the caller already supplied both
// keyword lists, the generator is never invoked.
func (e *Engine) elicitKeywords(ctx context.Context, query string, param model.QueryParam) (keywordSet, error) {
	hl, ll := param.HLKeywords, param.LLKeywords

	if len(hl) == 0 && len(ll) == 0 && e.generate != nil {
		resp, err := e.generate(ctx, keywordExtractionSystemPrompt, nil, query)
		if err != nil {
			e.logger.Warn("query: keyword elicitation failed, proceeding with query text only", "error", err)
		} else {
			parsed, ok := parseKeywordResponse(resp)
			if !ok {
				e.logger.Warn("query: keyword elicitation response was not parseable JSON", "response", resp)
			} else {
				hl, ll = parsed.high, parsed.low
			}
		}
	}

	return keywordSet{
		HighLevel: hl,
		LowLevel:  ll,
		Retrieval: composeRetrievalString(hl, ll, query),
	}, nil
}

type parsedKeywords struct {
	high []string
	low  []string
}

// parseKeywordResponse finds the first JSON object in resp and decodes it
// tolerantly; the generator may wrap its JSON in prose or code fences.
func parseKeywordResponse(resp string) (parsedKeywords, bool) {
	start := strings.IndexByte(resp, '{')
	if start < 0 {
		return parsedKeywords{}, false
	}

	var raw struct {
		HighLevelKeywords []string `json:"high_level_keywords"`
		LowLevelKeywords  []string `json:"low_level_keywords"`
	}
	if err := json.NewDecoder(strings.NewReader(resp[start:])).Decode(&raw); err != nil {
		return parsedKeywords{}, false
	}
	return parsedKeywords{high: raw.HighLevelKeywords, low: raw.LowLevelKeywords}, true
}

func composeRetrievalString(hl, ll []string, query string) string {
	parts := make([]string, 0, len(hl)+len(ll)+1)
	parts = append(parts, hl...)
	parts = append(parts, ll...)
	parts = append(parts, query)
	return strings.Join(parts, " ")
}
