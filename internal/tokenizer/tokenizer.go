// Package tokenizer backs the chunker's token-window mode and the query
// engine's token budgets with the same BPE encoding OpenAI's own models
// use, so configured token sizes mean the same thing the LLM sees.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Tokenizer encodes and decodes text against a fixed BPE encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var (
	once       sync.Once
	defaultTok *Tokenizer
	defaultErr error
)

// New builds a Tokenizer for the named tiktoken encoding (e.g.
// "cl100k_base"). Pass "" for the default.
func New(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %q: %w", encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Default returns a process-wide Tokenizer for cl100k_base, built once.
func Default() (*Tokenizer, error) {
	once.Do(func() {
		defaultTok, defaultErr = New(defaultEncoding)
	})
	return defaultTok, defaultErr
}

// Encode returns the token ids for text.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode reconstitutes text from token ids. Round-trips exactly for ids
// produced by Encode on the same Tokenizer.
func (t *Tokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count returns len(Encode(text)), for callers that only need the count.
func (t *Tokenizer) Count(text string) int {
	return len(t.Encode(text))
}
