package model

// Mode selects the query engine's retrieval strategy.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	ModeHybrid Mode = "hybrid"
	ModeNaive  Mode = "naive"
	ModeMix    Mode = "mix"
	ModeBypass Mode = "bypass"
)

// FailResponse is returned verbatim whenever retrieval surfaces no usable
// context.
const FailResponse = "Sorry, I'm not able to provide an answer to that question.[no-context]"

// QueryParam carries a query's mode and every budget/override it runs
// under.
type QueryParam struct {
	Mode Mode `json:"mode"`

	TopK              int     `json:"top_k"`
	ChunkTopK         int     `json:"chunk_top_k"`
	MaxEntityTokens   int     `json:"max_entity_tokens"`
	MaxRelationTokens int     `json:"max_relation_tokens"`
	MaxTotalTokens    int     `json:"max_total_tokens"`
	CosSimThreshold   *float64 `json:"cos_sim_threshold,omitempty"`

	EnableRerank   bool    `json:"enable_rerank,omitempty"`
	MinRerankScore float64 `json:"min_rerank_score,omitempty"`

	HLKeywords []string `json:"hl_keywords,omitempty"`
	LLKeywords []string `json:"ll_keywords,omitempty"`

	OnlyNeedContext     bool     `json:"only_need_context,omitempty"`
	ResponseType        string   `json:"response_type,omitempty"`
	UserPrompt          string   `json:"user_prompt,omitempty"`
	ConversationHistory []Turn   `json:"conversation_history,omitempty"`
}

// Turn is a single prior exchange supplied as conversation_history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reference is a single numbered entry in the context's reference list,
// formatted as "[n] file_path".
type Reference struct {
	ID       int    `json:"id"`
	FilePath string `json:"file_path"`
}

// RawData is the retrieved material a query assembled into context,
// returned alongside the generated response for callers that want to
// inspect or re-render it.
type RawData struct {
	Entities      []Entity        `json:"entities"`
	Relationships []Relation      `json:"relationships"`
	Chunks        []Chunk         `json:"chunks"`
	References    []Reference     `json:"references"`
	Metadata      RawDataMetadata `json:"metadata"`
}

// RawDataMetadata records how the raw data was produced.
type RawDataMetadata struct {
	QueryMode  Mode     `json:"queryMode"`
	HLKeywords []string `json:"hl_keywords,omitempty"`
	LLKeywords []string `json:"ll_keywords,omitempty"`
}

// QueryResult is the query engine's full output.
type QueryResult struct {
	Response string  `json:"response"`
	Context  string  `json:"context"`
	RawData  RawData `json:"raw_data"`
}
