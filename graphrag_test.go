package graphrag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphrag-go/graphrag/config"
	"github.com/graphrag-go/graphrag/deletion"
	"github.com/graphrag-go/graphrag/model"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.WorkingDir = t.TempDir()
	return cfg
}

// echoEmbed returns a fixed-length deterministic embedding for every text,
// just distinct enough for cosine search to prefer closer matches.
func echoEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 3)
		for j := range vec {
			vec[j] = float32((len(text) + j) % 7)
		}
		out[i] = vec
	}
	return out, nil
}

func stubGenerate(resp string) Generate {
	return func(ctx context.Context, system, user string) (string, error) { return resp, nil }
}

func TestNewBuildsEveryStore(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.NotNil(t, g.docStatus)
	assert.NotNil(t, g.chunksKV)
	assert.NotNil(t, g.chunksVDB)
	assert.NotNil(t, g.entitiesVDB)
	assert.NotNil(t, g.relationsVDB)
	assert.NotNil(t, g.graph)
	assert.NotNil(t, g.llmCache)
}

func TestNewSkipsCacheWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableLLMCache = false
	g, err := New(cfg, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, g.llmCache)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkTokenSize = 0
	_, err := New(cfg, nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestInsertChunksAndCommitsWithoutExtraction(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	err = g.Insert(context.Background(), "Ada Lovelace worked with Charles Babbage on the Analytical Engine.", "doc.txt")
	require.NoError(t, err)

	docs := g.docStatus.All()
	require.Len(t, docs, 1)
	for _, doc := range docs {
		assert.True(t, doc.IsProcessed())
		assert.NotEmpty(t, doc.ChunkIDs)
	}
}

func TestInsertIsIdempotentForProcessedDocument(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	content := "Same content, inserted twice."
	require.NoError(t, g.Insert(context.Background(), content, "a.txt"))
	require.NoError(t, g.Insert(context.Background(), content, "a.txt"))

	assert.Len(t, g.docStatus.All(), 1)
}

func TestInsertExtractsAndMergesIntoGraph(t *testing.T) {
	extractResp := "entity<|#|>Ada Lovelace<|#|>person<|#|>Mathematician.\n" +
		"entity<|#|>Charles Babbage<|#|>person<|#|>Inventor.\n" +
		"relation<|#|>Ada Lovelace<|#|>Charles Babbage<|#|>Collaborators,8.0<|#|>Worked together.\n" +
		"<|COMPLETE|>"

	g, err := New(testConfig(t), stubGenerate(extractResp), nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	err = g.Insert(context.Background(), "Ada Lovelace worked with Charles Babbage on the Analytical Engine.", "doc.txt")
	require.NoError(t, err)

	_, ok := g.graph.GetNode("Ada Lovelace")
	assert.True(t, ok)
	_, ok = g.graph.GetEdge("Ada Lovelace", "Charles Babbage")
	assert.True(t, ok)
}

func TestInsertAllRunsEveryDocument(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	err = g.InsertAll(context.Background(), []struct{ Content, FilePath string }{
		{Content: "First document about cats.", FilePath: "a.txt"},
		{Content: "Second document about dogs.", FilePath: "b.txt"},
	})
	require.NoError(t, err)
	assert.Len(t, g.docStatus.All(), 2)
}

func TestQueryBypassShortCircuits(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	result, err := g.Query(context.Background(), "hello", model.QueryParam{Mode: model.ModeBypass})
	require.NoError(t, err)
	assert.Equal(t, model.FailResponse, result.Response)
}

func TestDeleteRemovesInsertedDocument(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	content := "Document to be deleted shortly after insertion."
	require.NoError(t, g.Insert(context.Background(), content, "gone.txt"))

	doc := model.NewDocument(content, "gone.txt")
	result, err := g.Delete(context.Background(), doc.DocID, deletion.Options{DeleteChunks: true})
	require.NoError(t, err)
	assert.Equal(t, doc.DocID, result.DocID)

	_, ok := g.docStatus.Get(doc.DocID)
	assert.False(t, ok)
}

func TestKnowledgeSubgraphFiltersByLabel(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	g.graph.UpsertNode(model.Entity{EntityName: "Ada Lovelace", EntityType: "person"})
	g.graph.UpsertNode(model.Entity{EntityName: "Analytical Engine", EntityType: "device"})
	g.graph.UpsertEdge(model.Relation{SrcID: "Ada Lovelace", TgtID: "Analytical Engine", Description: "designed"})

	nodes, edges, truncated := g.KnowledgeSubgraph("device", 0, 10)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Analytical Engine", nodes[0].EntityName)
	assert.Empty(t, edges)
	assert.False(t, truncated)
}

func TestKnowledgeSubgraphEmptyLabelMatchesEverySeed(t *testing.T) {
	g, err := New(testConfig(t), nil, nil, echoEmbed, nil, nil)
	require.NoError(t, err)

	g.graph.UpsertNode(model.Entity{EntityName: "Ada Lovelace", EntityType: "person"})
	g.graph.UpsertNode(model.Entity{EntityName: "Analytical Engine", EntityType: "device"})
	g.graph.UpsertEdge(model.Relation{SrcID: "Ada Lovelace", TgtID: "Analytical Engine", Description: "designed"})

	nodes, edges, truncated := g.KnowledgeSubgraph("", 2, 10)
	assert.Len(t, nodes, 2)
	assert.Len(t, edges, 1)
	assert.False(t, truncated)
}
