package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested document or chunk does not exist.
var ErrNotFound = errors.New("document: not found")

// Store defines the persistence operations the retrieval engine needs.
// Interfaces are defined by the consumer: a relational implementation lives
// with the ingestion subsystem, MemoryStore below serves tests and
// single-process deployments.
type Store interface {
	// PutDocument inserts or updates a document.
	PutDocument(ctx context.Context, doc Document) error

	// GetDocument returns a document by ID, or ErrNotFound.
	GetDocument(ctx context.Context, id string) (Document, error)

	// ListDocuments returns all documents ordered by creation time.
	ListDocuments(ctx context.Context) ([]Document, error)

	// ReplaceChunks atomically replaces all chunks of a document.
	ReplaceChunks(ctx context.Context, docID string, chunks []Chunk) error

	// GetChunk returns a chunk by ID, or ErrNotFound.
	GetChunk(ctx context.Context, id string) (Chunk, error)

	// ChunksByDocument returns a document's chunks ordered by Index.
	ChunksByDocument(ctx context.Context, docID string) ([]Chunk, error)

	// SetChunkVectorID records the dense id assigned to a chunk.
	SetChunkVectorID(ctx context.Context, chunkID string, vectorID int64) error

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use by multiple goroutines.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]Document
	chunks map[string]Chunk
	// byDoc indexes chunk IDs per document for ReplaceChunks/DeleteDocument.
	byDoc map[string][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]Document),
		chunks: make(map[string]Chunk),
		byDoc:  make(map[string][]string),
	}
}

// NewID returns a fresh document or chunk identifier.
func NewID() string {
	return uuid.NewString()
}

// PutDocument inserts or updates a document. A zero CreatedAt is filled in.
func (s *MemoryStore) PutDocument(_ context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document: empty document ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	s.docs[doc.ID] = doc
	return nil
}

// GetDocument returns a document by ID.
func (s *MemoryStore) GetDocument(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	return doc, nil
}

// ListDocuments returns all documents ordered by creation time, oldest first.
func (s *MemoryStore) ListDocuments(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// ReplaceChunks drops any existing chunks of the document and stores the new
// set. Chunk IDs are assigned when empty.
func (s *MemoryStore) ReplaceChunks(_ context.Context, docID string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byDoc[docID] {
		delete(s.chunks, id)
	}
	delete(s.byDoc, docID)

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = NewID()
		}
		c.DocumentID = docID
		s.chunks[c.ID] = c
		ids = append(ids, c.ID)
	}
	s.byDoc[docID] = ids
	return nil
}

// GetChunk returns a chunk by ID.
func (s *MemoryStore) GetChunk(_ context.Context, id string) (Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return Chunk{}, fmt.Errorf("chunk %q: %w", id, ErrNotFound)
	}
	return c, nil
}

// ChunksByDocument returns a document's chunks ordered by Index.
func (s *MemoryStore) ChunksByDocument(_ context.Context, docID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byDoc[docID]
	chunks := make([]Chunk, 0, len(ids))
	for _, id := range ids {
		chunks = append(chunks, s.chunks[id])
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// SetChunkVectorID records the dense id assigned to a chunk by the index.
func (s *MemoryStore) SetChunkVectorID(_ context.Context, chunkID string, vectorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return fmt.Errorf("chunk %q: %w", chunkID, ErrNotFound)
	}
	c.VectorID = vectorID
	s.chunks[chunkID] = c
	return nil
}

// DeleteDocument removes a document and all of its chunks.
func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cid := range s.byDoc[id] {
		delete(s.chunks, cid)
	}
	delete(s.byDoc, id)
	delete(s.docs, id)
	return nil
}
