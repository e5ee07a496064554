package model

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"time"
)

// DocStatus is a document's position in its ingestion lifecycle.
type DocStatus string

const (
	DocStatusPending      DocStatus = "pending"
	DocStatusProcessing   DocStatus = "processing"
	DocStatusPreprocessed DocStatus = "preprocessed"
	DocStatusProcessed    DocStatus = "processed"
	DocStatusFailed       DocStatus = "failed"
)

// summaryLen is how much of a document's content is kept as its summary.
const summaryLen = 100

// Document is a source document tracked through ingestion.
type Document struct {
	DocID          string    `json:"doc_id"`
	ContentMD5     string    `json:"content_md5"`
	Status         DocStatus `json:"status"`
	FilePath       string    `json:"file_path"`
	ContentSummary string    `json:"content_summary"`
	ContentLength  int       `json:"content_length"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ChunksCount    int       `json:"chunks_count,omitempty"`
	ChunkIDs       []string  `json:"chunk_ids,omitempty"`
	ErrorMsg       string    `json:"error_msg,omitempty"`
}

// NewDocument builds a pending Document for content already read into
// memory. doc_id is derived from the content's MD5, so re-ingesting
// byte-identical content always resolves to the same document.
func NewDocument(content, filePath string) *Document {
	now := time.Now().UTC()
	hexSum := contentMD5(content)

	summary := content
	if len(summary) > summaryLen {
		summary = summary[:summaryLen]
	}

	return &Document{
		DocID:          "doc-" + hexSum,
		ContentMD5:     hexSum,
		Status:         DocStatusPending,
		FilePath:       filePath,
		ContentSummary: summary,
		ContentLength:  len(content),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewDocumentFromFile reads filePath and builds a pending Document from its
// content.
func NewDocumentFromFile(filePath string) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return NewDocument(string(content), filePath), nil
}

func contentMD5(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// MarkProcessing transitions the document into the processing state.
func (d *Document) MarkProcessing() {
	d.Status = DocStatusProcessing
	d.UpdatedAt = time.Now().UTC()
}

// MarkProcessed transitions the document into the processed state and
// records the chunks produced for it.
func (d *Document) MarkProcessed(chunkIDs []string) {
	d.Status = DocStatusProcessed
	d.ChunkIDs = chunkIDs
	d.ChunksCount = len(chunkIDs)
	d.ErrorMsg = ""
	d.UpdatedAt = time.Now().UTC()
}

// MarkFailed transitions the document into the failed state with a
// retained error message; reingestion restarts the pipeline.
func (d *Document) MarkFailed(errMsg string) {
	d.Status = DocStatusFailed
	d.ErrorMsg = errMsg
	d.UpdatedAt = time.Now().UTC()
}

// IsProcessed reports whether the document need not be ingested again,
// per the idempotence invariant (I6).
func (d *Document) IsProcessed() bool {
	return d.Status == DocStatusProcessed
}
