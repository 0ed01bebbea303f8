// Package document defines the business entities the retrieval engine works
// with: documents and their ordered passages (chunks).
//
// Persistence of these entities in a relational store is owned by the
// ingestion subsystem; this package only defines the types, the Store
// interface the engine consumes, and an in-memory implementation used for
// tests and single-process deployments.
package document

import (
	"time"
)

// Document processing statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// MaxErrorMessageLen bounds the error message stored on a failed document.
const MaxErrorMessageLen = 255

// Document represents an ingested document. The raw file and its text
// extraction live outside the engine; Document only carries what retrieval
// needs.
type Document struct {
	ID                    string
	Title                 string
	Status                string
	ErrorMessage          string
	EmbeddingModelVersion string
	CreatedAt             time.Time
}

// Chunk is a contiguous slice of a document's text, the unit of embedding and
// retrieval. (DocumentID, Index) is unique; Index is dense and 0-based in
// original document order.
type Chunk struct {
	ID         string
	DocumentID string
	// Index is the chunk's 0-based position within its document.
	Index   int
	Content string
	// EmbeddingModelVersion records the model the chunk was embedded with.
	EmbeddingModelVersion string
	// VectorID is the dense id assigned by the vector index, or -1 before
	// the chunk has been indexed.
	VectorID int64
}

// SetFailure marks the document failed with a truncated error message.
func (d *Document) SetFailure(msg string) {
	d.Status = StatusFailed
	if len(msg) > MaxErrorMessageLen {
		msg = msg[:MaxErrorMessageLen]
	}
	d.ErrorMessage = msg
}
