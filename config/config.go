// Package config carries the construction-time knobs for every engine
// component: storage location, chunking sizes, retrieval budgets, and the
// backend selectors that name which storage implementation to use.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/graphrag-go/graphrag/internal/errs"
)

// SourceIDLimitPolicy controls how an entity's or relation's accumulated
// source_id set is trimmed once it exceeds its configured cap.
type SourceIDLimitPolicy string

const (
	// SourceIDPolicyFIFO drops the oldest ids, keeping the most recent.
	SourceIDPolicyFIFO SourceIDLimitPolicy = "FIFO"
	// SourceIDPolicyKeep drops the newest ids, keeping the oldest.
	SourceIDPolicyKeep SourceIDLimitPolicy = "KEEP"
)

// DefaultEntityTypes is the default entity-type vocabulary offered to the
// extractor's system prompt.
var DefaultEntityTypes = []string{
	"organization",
	"person",
	"geo",
	"event",
	"category",
	"product",
	"technology",
	"concept",
	"role",
	"law",
	"date",
}

// Config is the full set of recognized options for an engine instance.
type Config struct {
	WorkingDir string `yaml:"working_dir"`
	Namespace  string `yaml:"namespace"`

	EmbeddingDim int `yaml:"embedding_dim"`

	ChunkTokenSize        int    `yaml:"chunk_token_size"`
	ChunkOverlapTokenSize int    `yaml:"chunk_overlap_token_size"`
	SplitByCharacter      string `yaml:"split_by_character"`
	SplitByCharacterOnly  bool   `yaml:"split_by_character_only"`

	TopK                int     `yaml:"top_k"`
	ChunkTopK           int     `yaml:"chunk_top_k"`
	MaxEntityTokens     int     `yaml:"max_entity_tokens"`
	MaxRelationTokens   int     `yaml:"max_relation_tokens"`
	MaxTotalTokens      int     `yaml:"max_total_tokens"`
	CosineThreshold     float64 `yaml:"cosine_threshold"`
	MinRerankScore      float64 `yaml:"min_rerank_score"`

	MaxGleaning int      `yaml:"max_gleaning"`
	EntityTypes []string `yaml:"entity_types"`
	Language    string   `yaml:"language"`

	ForceLLMSummaryOnMerge int                 `yaml:"force_llm_summary_on_merge"`
	SourceIDsLimitMethod   SourceIDLimitPolicy `yaml:"source_ids_limit_method"`
	MaxSourceIDsPerEntity  int                 `yaml:"max_source_ids_per_entity"`
	MaxSourceIDsPerRelation int                `yaml:"max_source_ids_per_relation"`

	EnableLLMCache bool `yaml:"enable_llm_cache"`

	MaxAsync          int `yaml:"max_async"`
	MaxParallelInsert int `yaml:"max_parallel_insert"`

	KVStorage        string `yaml:"kv_storage"`
	VectorStorage    string `yaml:"vector_storage"`
	GraphStorage     string `yaml:"graph_storage"`
	DocStatusStorage string `yaml:"doc_status_storage"`
}

// Default returns the documented defaults for every knob.
func Default() Config {
	return Config{
		WorkingDir: "./graphrag_storage",
		Namespace:  "default",

		EmbeddingDim: 1536,

		ChunkTokenSize:        1200,
		ChunkOverlapTokenSize: 100,

		TopK:              40,
		ChunkTopK:         20,
		MaxEntityTokens:   6000,
		MaxRelationTokens: 8000,
		MaxTotalTokens:    30000,
		CosineThreshold:   0.2,
		MinRerankScore:    0.1,

		MaxGleaning: 1,
		EntityTypes: append([]string(nil), DefaultEntityTypes...),
		Language:    "English",

		ForceLLMSummaryOnMerge:  8,
		SourceIDsLimitMethod:    SourceIDPolicyFIFO,
		MaxSourceIDsPerEntity:   300,
		MaxSourceIDsPerRelation: 300,

		EnableLLMCache: true,

		MaxAsync:          4,
		MaxParallelInsert: 2,

		KVStorage:        "file",
		VectorStorage:    "file",
		GraphStorage:     "file",
		DocStatusStorage: "file",
	}
}

// Validate checks invariants that must hold before any component is
// constructed from c, returning a *errs.ConfigurationError on the first
// violation found.
func (c Config) Validate() error {
	if c.WorkingDir == "" {
		return &errs.ConfigurationError{Param: "working_dir", Value: c.WorkingDir}
	}
	if c.Namespace == "" {
		return &errs.ConfigurationError{Param: "namespace", Value: c.Namespace}
	}
	if c.EmbeddingDim <= 0 {
		return &errs.ConfigurationError{Param: "embedding_dim", Value: c.EmbeddingDim}
	}
	if c.ChunkTokenSize <= 0 {
		return &errs.ConfigurationError{Param: "chunk_token_size", Value: c.ChunkTokenSize}
	}
	if c.ChunkOverlapTokenSize < 0 {
		return &errs.ConfigurationError{Param: "chunk_overlap_token_size", Value: c.ChunkOverlapTokenSize}
	}
	if c.ChunkOverlapTokenSize >= c.ChunkTokenSize {
		return &errs.ConfigurationError{Param: "chunk_overlap_token_size", Value: c.ChunkOverlapTokenSize}
	}
	if c.TopK <= 0 {
		return &errs.ConfigurationError{Param: "top_k", Value: c.TopK}
	}
	if c.ChunkTopK <= 0 {
		return &errs.ConfigurationError{Param: "chunk_top_k", Value: c.ChunkTopK}
	}
	if c.MaxEntityTokens <= 0 {
		return &errs.ConfigurationError{Param: "max_entity_tokens", Value: c.MaxEntityTokens}
	}
	if c.MaxRelationTokens <= 0 {
		return &errs.ConfigurationError{Param: "max_relation_tokens", Value: c.MaxRelationTokens}
	}
	if c.MaxTotalTokens <= 0 {
		return &errs.ConfigurationError{Param: "max_total_tokens", Value: c.MaxTotalTokens}
	}
	if c.CosineThreshold < 0 || c.CosineThreshold > 1 {
		return &errs.ConfigurationError{Param: "cosine_threshold", Value: c.CosineThreshold}
	}
	if c.MaxGleaning < 0 {
		return &errs.ConfigurationError{Param: "max_gleaning", Value: c.MaxGleaning}
	}
	if c.SourceIDsLimitMethod != SourceIDPolicyFIFO && c.SourceIDsLimitMethod != SourceIDPolicyKeep {
		return &errs.ConfigurationError{Param: "source_ids_limit_method", Value: c.SourceIDsLimitMethod}
	}
	if c.MaxSourceIDsPerEntity <= 0 {
		return &errs.ConfigurationError{Param: "max_source_ids_per_entity", Value: c.MaxSourceIDsPerEntity}
	}
	if c.MaxSourceIDsPerRelation <= 0 {
		return &errs.ConfigurationError{Param: "max_source_ids_per_relation", Value: c.MaxSourceIDsPerRelation}
	}
	if c.MaxAsync <= 0 {
		return &errs.ConfigurationError{Param: "max_async", Value: c.MaxAsync}
	}
	if c.MaxParallelInsert <= 0 {
		return &errs.ConfigurationError{Param: "max_parallel_insert", Value: c.MaxParallelInsert}
	}
	for name, v := range map[string]string{
		"kv_storage":         c.KVStorage,
		"vector_storage":     c.VectorStorage,
		"graph_storage":      c.GraphStorage,
		"doc_status_storage": c.DocStatusStorage,
	} {
		if v == "" {
			return &errs.ConfigurationError{Param: name, Value: v}
		}
	}
	return nil
}

// LoadFile merges YAML-encoded overrides at path onto Default(), validating
// the result before returning it. Used by the cmd/ tools; the core engine
// itself never reads from disk for configuration.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.NewError("config.LoadFile", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errs.NewError("config.LoadFile", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
