package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// llmCacheEntry is one cached generator response.
type llmCacheEntry struct {
	Response string `json:"response"`
}

// LLMCacheStore is the content-addressed cache that, when enabled, sits
// in front of the extraction and merge-summary generator calls: the same
// (system, prompt) pair never pays for a second round trip there. Query-time
// chat generation does not go through it.
type LLMCacheStore struct {
	kv *KVStore[llmCacheEntry]
}

// NewLLMCacheStore opens (or creates) {workingDir}/{namespace}/llm_cache.json.
func NewLLMCacheStore(workingDir, namespace string, logger *slog.Logger) (*LLMCacheStore, error) {
	kv, err := NewKVStore[llmCacheEntry](workingDir, namespace, "llm_cache", logger)
	if err != nil {
		return nil, err
	}
	return &LLMCacheStore{kv: kv}, nil
}

// Lookup returns the cached response for (system, prompt), if any.
func (c *LLMCacheStore) Lookup(system, prompt string) (string, bool) {
	entry, ok := c.kv.Get(cacheKey(system, prompt))
	if !ok {
		return "", false
	}
	return entry.Response, true
}

// Store records response for (system, prompt).
func (c *LLMCacheStore) Store(system, prompt, response string) {
	c.kv.Upsert(cacheKey(system, prompt), llmCacheEntry{Response: response})
}

// Commit writes the in-memory state to disk atomically if dirty.
func (c *LLMCacheStore) Commit() error {
	return c.kv.Commit()
}

// Drop clears all cached entries in memory and marks the store dirty.
func (c *LLMCacheStore) Drop() {
	c.kv.Drop()
}

func cacheKey(system, prompt string) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}
