package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/graphrag-go/graphrag/model"
)

const defaultResponseType = "Multiple Paragraphs"

// systemPrompt builds Stage 5's system prompt, incorporating the
// requested response_type when the caller supplied one.
func (e *Engine) systemPrompt(param model.QueryParam) string {
	responseType := param.ResponseType
	if responseType == "" {
		responseType = defaultResponseType
	}
	return fmt.Sprintf(
		"You are answering a question using only the context provided below. "+
			"If the context is insufficient, say so rather than guessing.\n"+
			"Response format: %s.",
		responseType,
	)
}

// formatPrompt builds Stage 5's user-facing prompt: the assembled
// context, the reference list, and the caller's query. naive mode omits
// the entities/relations sections since Stage 2 never populated them.
func (e *Engine) formatPrompt(query string, ctx assembledContext, param model.QueryParam) string {
	var b strings.Builder

	if param.Mode != model.ModeNaive {
		b.WriteString("-----Entities-----\n")
		b.WriteString(marshalSection(ctx.Entities))
		b.WriteString("\n\n-----Relationships-----\n")
		b.WriteString(marshalSection(ctx.Relations))
		b.WriteString("\n\n")
	}

	b.WriteString("-----Sources-----\n")
	b.WriteString(marshalSection(ctx.Chunks))
	b.WriteString("\n\n-----References-----\n")
	for _, ref := range ctx.References {
		fmt.Fprintf(&b, "[%d] %s\n", ref.ID, ref.FilePath)
	}

	if param.UserPrompt != "" {
		b.WriteString("\n-----Additional instructions-----\n")
		b.WriteString(param.UserPrompt)
		b.WriteString("\n")
	}

	b.WriteString("\n-----Question-----\n")
	b.WriteString(query)

	return b.String()
}

func marshalSection[T any](items []T) string {
	if len(items) == 0 {
		return "(none)"
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "(none)"
	}
	return string(b)
}
