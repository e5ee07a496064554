package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataMarshal(t *testing.T) {
	t.Run("empty metadata", func(t *testing.T) {
		m := Metadata{}
		b, err := m.Marshal()
		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), b)
	})

	t.Run("simple values", func(t *testing.T) {
		m := Metadata{"key1": "value1", "key2": 42, "key3": true}
		b, err := m.Marshal()
		require.NoError(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(b, &result))
		assert.Equal(t, "value1", result["key1"])
		assert.Equal(t, float64(42), result["key2"])
		assert.Equal(t, true, result["key3"])
	})
}

func TestMetadataUnmarshal(t *testing.T) {
	t.Run("valid JSON bytes", func(t *testing.T) {
		var m Metadata
		require.NoError(t, m.Unmarshal([]byte(`{"key1":"value1","key2":42}`)))
		assert.Equal(t, "value1", m["key1"])
		assert.Equal(t, float64(42), m["key2"])
	})

	t.Run("nil value", func(t *testing.T) {
		var m Metadata
		require.NoError(t, m.Unmarshal(nil))
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Metadata directly", func(t *testing.T) {
		source := Metadata{"key": "value"}
		var m Metadata
		require.NoError(t, m.Unmarshal(source))
		assert.Equal(t, "value", m["key"])
	})

	t.Run("invalid JSON", func(t *testing.T) {
		var m Metadata
		assert.Error(t, m.Unmarshal([]byte(`{invalid json}`)))
	})

	t.Run("invalid type", func(t *testing.T) {
		var m Metadata
		err := m.Unmarshal(12345)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "type assertion")
	})
}

func TestMetadataRoundTrip(t *testing.T) {
	original := Metadata{
		"entity_name": "Ada Lovelace",
		"number":      42,
	}
	b, err := original.Marshal()
	require.NoError(t, err)

	var restored Metadata
	require.NoError(t, restored.Unmarshal(b))
	assert.Equal(t, "Ada Lovelace", restored["entity_name"])
	assert.Equal(t, float64(42), restored["number"])
}

func TestMetadataJoinKeyAccessors(t *testing.T) {
	entityMeta := Metadata{"entity_name": "Ada Lovelace"}
	assert.Equal(t, "Ada Lovelace", entityMeta.EntityName())

	relMeta := Metadata{"src_id": "Ada Lovelace", "tgt_id": "Charles Babbage"}
	src, tgt := relMeta.SrcTgt()
	assert.Equal(t, "Ada Lovelace", src)
	assert.Equal(t, "Charles Babbage", tgt)

	chunkMeta := Metadata{"doc_id": "doc-abc123"}
	assert.Equal(t, "doc-abc123", chunkMeta.DocID())
}
