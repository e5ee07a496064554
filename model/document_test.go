package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentDerivesDocIDFromContent(t *testing.T) {
	doc := NewDocument("hello world", "/tmp/a.txt")

	assert.True(t, strings.HasPrefix(doc.DocID, "doc-"))
	assert.Equal(t, DocStatusPending, doc.Status)
	assert.Equal(t, 11, doc.ContentLength)
	assert.Equal(t, "hello world", doc.ContentSummary)
}

func TestNewDocumentIdenticalContentSameID(t *testing.T) {
	a := NewDocument("same content", "/tmp/a.txt")
	b := NewDocument("same content", "/tmp/b.txt")
	assert.Equal(t, a.DocID, b.DocID)
}

func TestNewDocumentSummaryTruncatesAt100Chars(t *testing.T) {
	content := strings.Repeat("x", 250)
	doc := NewDocument(content, "/tmp/big.txt")
	assert.Len(t, doc.ContentSummary, 100)
}

func TestNewDocumentFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "test.txt")
	content := "This is test content"
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))

	doc, err := NewDocumentFromFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, filePath, doc.FilePath)
	assert.Equal(t, len(content), doc.ContentLength)
}

func TestNewDocumentFromFileMissing(t *testing.T) {
	doc, err := NewDocumentFromFile("/non/existent/file.txt")
	require.Error(t, err)
	assert.Nil(t, doc)
}

func TestDocumentLifecycleTransitions(t *testing.T) {
	doc := NewDocument("content", "/tmp/a.txt")

	doc.MarkProcessing()
	assert.Equal(t, DocStatusProcessing, doc.Status)
	assert.False(t, doc.IsProcessed())

	doc.MarkProcessed([]string{"chunk-1", "chunk-2"})
	assert.Equal(t, DocStatusProcessed, doc.Status)
	assert.Equal(t, 2, doc.ChunksCount)
	assert.True(t, doc.IsProcessed())

	doc.MarkFailed("boom")
	assert.Equal(t, DocStatusFailed, doc.Status)
	assert.Equal(t, "boom", doc.ErrorMsg)
	assert.False(t, doc.IsProcessed())
}
