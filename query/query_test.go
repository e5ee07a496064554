package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag-go/graphrag/model"
	"github.com/graphrag-go/graphrag/storage"
)

type fakeTok struct{}

func (fakeTok) Count(text string) int    { return len(text) }
func (fakeTok) Encode(text string) []int { out := make([]int, len(text)); return out }
func (fakeTok) Decode(tokens []int) string {
	return string(make([]byte, len(tokens)))
}

func newTestStores(t *testing.T) Stores {
	t.Helper()
	dir := t.TempDir()

	graph, err := storage.NewGraphStore(dir, "ns", nil)
	require.NoError(t, err)
	entitiesVDB, err := storage.NewVectorStore(dir, "ns", "entities_vdb", nil)
	require.NoError(t, err)
	relationsVDB, err := storage.NewVectorStore(dir, "ns", "relations_vdb", nil)
	require.NoError(t, err)
	chunksVDB, err := storage.NewVectorStore(dir, "ns", "chunks_vdb", nil)
	require.NoError(t, err)
	chunks, err := storage.NewKVStore[*model.Chunk](dir, "ns", "chunks", nil)
	require.NoError(t, err)

	return Stores{Chunks: chunks, Graph: graph, EntitiesVDB: entitiesVDB, RelationsVDB: relationsVDB, ChunksVDB: chunksVDB}
}

func echoEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = []float32{1, 1, 1}
	}
	return vecs, nil
}

func stubGenerate(resp string) Generate {
	return func(ctx context.Context, system string, history []model.Turn, prompt string) (string, error) {
		return resp, nil
	}
}

func TestQueryBypassReturnsFailResponseImmediately(t *testing.T) {
	stores := newTestStores(t)
	e := New(stores, nil, nil, nil, fakeTok{}, Options{TopK: 10, ChunkTopK: 10}, nil)

	result, err := e.Query(context.Background(), "anything", model.QueryParam{Mode: model.ModeBypass})
	require.NoError(t, err)
	assert.Equal(t, model.FailResponse, result.Response)
}

func TestQueryNaiveRetrievesChunksDirect(t *testing.T) {
	stores := newTestStores(t)

	chunk := model.NewChunk("Ada Lovelace wrote the first algorithm.", 8, "doc-1", 0, "ada.txt")
	stores.Chunks.Upsert(chunk.ChunkID, chunk)
	stores.ChunksVDB.Upsert(map[string]storage.VectorRecord{
		chunk.ChunkID: {ID: chunk.ChunkID, Embedding: []float32{1, 1, 1}, Content: chunk.Content},
	})

	e := New(stores, stubGenerate("Ada Lovelace wrote it."), echoEmbed, nil, fakeTok{}, Options{
		TopK: 10, ChunkTopK: 10, MaxEntityTokens: 6000, MaxRelationTokens: 8000,
	}, nil)

	result, err := e.Query(context.Background(), "who wrote the first algorithm?", model.QueryParam{
		Mode: model.ModeNaive, HLKeywords: []string{"algorithm"}, LLKeywords: []string{"ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace wrote it.", result.Response)
	require.Len(t, result.RawData.Chunks, 1)
	assert.Equal(t, chunk.ChunkID, result.RawData.Chunks[0].ChunkID)
	require.Len(t, result.RawData.References, 1)
	assert.Equal(t, "ada.txt", result.RawData.References[0].FilePath)
}

func TestQueryLocalRetrievesEntitiesAndTheirChunks(t *testing.T) {
	stores := newTestStores(t)

	stores.Graph.UpsertNode(model.Entity{EntityName: "Ada Lovelace", EntityType: "person", Description: "mathematician", SourceID: "chunk-1"})
	stores.EntitiesVDB.Upsert(map[string]storage.VectorRecord{
		"Ada Lovelace": {ID: "Ada Lovelace", Embedding: []float32{1, 1, 1}, Metadata: model.Metadata{"entity_name": "Ada Lovelace"}},
	})

	chunk := &model.Chunk{ChunkID: "chunk-1", Content: "Ada Lovelace content.", FullDocID: "doc-1", FilePath: "ada.txt"}
	stores.Chunks.Upsert("chunk-1", chunk)

	e := New(stores, stubGenerate("answer"), echoEmbed, nil, fakeTok{}, Options{
		TopK: 10, ChunkTopK: 10, MaxEntityTokens: 6000, MaxRelationTokens: 8000,
	}, nil)

	result, err := e.Query(context.Background(), "who is ada?", model.QueryParam{
		Mode: model.ModeLocal, HLKeywords: []string{"person"}, LLKeywords: []string{"ada"},
	})
	require.NoError(t, err)
	require.Len(t, result.RawData.Entities, 1)
	assert.Equal(t, "Ada Lovelace", result.RawData.Entities[0].EntityName)
	require.Len(t, result.RawData.Chunks, 1)
	assert.Equal(t, "chunk-1", result.RawData.Chunks[0].ChunkID)
}

func TestQueryGlobalRetrievesRelationsFromEntityNeighborhood(t *testing.T) {
	stores := newTestStores(t)

	stores.Graph.UpsertNode(model.Entity{EntityName: "Ada Lovelace"})
	stores.Graph.UpsertNode(model.Entity{EntityName: "Charles Babbage"})
	stores.Graph.UpsertEdge(model.Relation{SrcID: "Ada Lovelace", TgtID: "Charles Babbage", Weight: 2, Description: "collaborated"})

	stores.EntitiesVDB.Upsert(map[string]storage.VectorRecord{
		"Ada Lovelace": {ID: "Ada Lovelace", Embedding: []float32{1, 1, 1}, Metadata: model.Metadata{"entity_name": "Ada Lovelace"}},
	})

	e := New(stores, stubGenerate("answer"), echoEmbed, nil, fakeTok{}, Options{
		TopK: 10, ChunkTopK: 10, MaxEntityTokens: 6000, MaxRelationTokens: 8000,
	}, nil)

	result, err := e.Query(context.Background(), "how are they related?", model.QueryParam{
		Mode: model.ModeGlobal, HLKeywords: []string{"collaboration"}, LLKeywords: []string{"ada"},
	})
	require.NoError(t, err)
	require.Len(t, result.RawData.Relationships, 1)
	assert.Equal(t, "collaborated", result.RawData.Relationships[0].Description)
	assert.Empty(t, result.RawData.Chunks)
}

func TestQueryReturnsFailResponseWhenNothingRetrieved(t *testing.T) {
	stores := newTestStores(t)
	e := New(stores, stubGenerate("answer"), echoEmbed, nil, fakeTok{}, Options{
		TopK: 10, ChunkTopK: 10, MaxEntityTokens: 6000, MaxRelationTokens: 8000,
	}, nil)

	result, err := e.Query(context.Background(), "anything", model.QueryParam{
		Mode: model.ModeLocal, HLKeywords: []string{"x"}, LLKeywords: []string{"y"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.FailResponse, result.Response)
}

func TestQueryOnlyNeedContextSkipsGeneration(t *testing.T) {
	stores := newTestStores(t)

	chunk := model.NewChunk("content here", 2, "doc-1", 0, "f.txt")
	stores.Chunks.Upsert(chunk.ChunkID, chunk)
	stores.ChunksVDB.Upsert(map[string]storage.VectorRecord{
		chunk.ChunkID: {ID: chunk.ChunkID, Embedding: []float32{1, 1, 1}, Content: chunk.Content},
	})

	called := false
	generate := func(ctx context.Context, system string, history []model.Turn, prompt string) (string, error) {
		called = true
		return "should not be called", nil
	}

	e := New(stores, generate, echoEmbed, nil, fakeTok{}, Options{
		TopK: 10, ChunkTopK: 10, MaxEntityTokens: 6000, MaxRelationTokens: 8000,
	}, nil)

	result, err := e.Query(context.Background(), "q", model.QueryParam{Mode: model.ModeNaive, OnlyNeedContext: true, HLKeywords: []string{"a"}, LLKeywords: []string{"b"}})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Empty(t, result.Response)
	assert.NotEmpty(t, result.Context)
}

func TestElicitKeywordsSkipsGeneratorWhenKeywordsSupplied(t *testing.T) {
	called := false
	generate := func(ctx context.Context, system string, history []model.Turn, prompt string) (string, error) {
		called = true
		return `{"high_level_keywords":["x"],"low_level_keywords":["y"]}`, nil
	}
	e := New(Stores{}, generate, nil, nil, fakeTok{}, Options{}, nil)

	kw, err := e.elicitKeywords(context.Background(), "query", model.QueryParam{HLKeywords: []string{"a"}, LLKeywords: []string{"b"}})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, "a b query", kw.Retrieval)
}

func TestElicitKeywordsParsesGeneratorJSON(t *testing.T) {
	generate := func(ctx context.Context, system string, history []model.Turn, prompt string) (string, error) {
		return "here is the answer: {\"high_level_keywords\":[\"tech\"],\"low_level_keywords\":[\"ada\"]} done", nil
	}
	e := New(Stores{}, generate, nil, nil, fakeTok{}, Options{}, nil)

	kw, err := e.elicitKeywords(context.Background(), "who", model.QueryParam{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech"}, kw.HighLevel)
	assert.Equal(t, []string{"ada"}, kw.LowLevel)
}

func TestElicitKeywordsDefaultsEmptyOnParseFailure(t *testing.T) {
	generate := func(ctx context.Context, system string, history []model.Turn, prompt string) (string, error) {
		return "not json at all", nil
	}
	e := New(Stores{}, generate, nil, nil, fakeTok{}, Options{}, nil)

	kw, err := e.elicitKeywords(context.Background(), "who", model.QueryParam{})
	require.NoError(t, err)
	assert.Empty(t, kw.HighLevel)
	assert.Empty(t, kw.LowLevel)
	assert.Equal(t, "who", kw.Retrieval)
}

func TestDedupChunksByIDRemovesDuplicates(t *testing.T) {
	a := model.Chunk{ChunkID: "c1", Content: "a"}
	b := model.Chunk{ChunkID: "c1", Content: "a"}
	c := model.Chunk{ChunkID: "c2", Content: "b"}
	out := dedupChunksByID([]model.Chunk{a, b, c})
	assert.Len(t, out, 2)
}

func TestRerankReordersByScoreAndFiltersBelowThreshold(t *testing.T) {
	stores := newTestStores(t)
	rerank := func(ctx context.Context, query string, docs []string) ([]RerankHit, error) {
		hits := make([]RerankHit, len(docs))
		for i := range docs {
			hits[i] = RerankHit{Index: i, RelevanceScore: float64(len(docs) - i) / 10}
		}
		return hits, nil
	}

	e := New(stores, nil, nil, rerank, fakeTok{}, Options{MinRerankScore: 0.15}, nil)

	chunks := []model.Chunk{
		{ChunkID: "c1", Content: "first"},
		{ChunkID: "c2", Content: "second"},
		{ChunkID: "c3", Content: "third"},
	}
	out, err := e.dedupAndRerank(context.Background(), "q", chunks, model.QueryParam{EnableRerank: true})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c1", out[0].ChunkID)
	assert.Equal(t, "c2", out[1].ChunkID)
}

func TestRerankFailurePreservesOriginalOrder(t *testing.T) {
	stores := newTestStores(t)
	rerank := func(ctx context.Context, query string, docs []string) ([]RerankHit, error) {
		return nil, assertErr
	}
	e := New(stores, nil, nil, rerank, fakeTok{}, Options{}, nil)

	chunks := []model.Chunk{{ChunkID: "c1"}, {ChunkID: "c2"}}
	out, err := e.dedupAndRerank(context.Background(), "q", chunks, model.QueryParam{EnableRerank: true})
	require.NoError(t, err)
	assert.Equal(t, chunks, out)
}

type assertError string

func (e assertError) Error() string { return string(e) }

var assertErr = assertError("rerank unavailable")

func TestGreedyTokenPrefixAlwaysKeepsFirstItem(t *testing.T) {
	items := []model.Entity{
		{EntityName: "A very long entity name that consumes most of the budget by itself"},
		{EntityName: "B"},
	}
	out, _ := greedyTokenPrefix(items, 10, fakeTok{})
	assert.Len(t, out, 1)
}

func TestGreedyTokenPrefixNegativeBudgetKeepsEverything(t *testing.T) {
	items := []model.Entity{{EntityName: "A"}, {EntityName: "B"}}
	out, _ := greedyTokenPrefix(items, -1, fakeTok{})
	assert.Len(t, out, 2)
}

func TestGreedyTokenPrefixZeroBudgetKeepsNothing(t *testing.T) {
	items := []model.Entity{{EntityName: "A"}, {EntityName: "B"}}
	out, _ := greedyTokenPrefix(items, 0, fakeTok{})
	assert.Empty(t, out)
}

func TestAssembleContextZeroChunkHeadroomTruncatesChunksNotJustEntities(t *testing.T) {
	e := &Engine{tok: fakeTok{}}
	entities := []model.Entity{{EntityName: "consumes the whole total budget by itself"}}
	chunks := []model.Chunk{{ChunkID: "c1", Content: "would blow the total budget if kept"}}

	out := e.assembleContext(entities, nil, chunks, model.QueryParam{
		MaxEntityTokens: 1000,
		MaxTotalTokens:  1,
	})
	assert.Empty(t, out.Chunks)
}
