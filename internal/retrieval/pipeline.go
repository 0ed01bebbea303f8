// Package retrieval orchestrates the full path from raw documents to ranked
// passages: chunking on ingestion, embedding and indexing, vector search
// with a Redis result cache, and optional reranking.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartdocs/retrieval/internal/chunk"
	"github.com/smartdocs/retrieval/internal/document"
	"github.com/smartdocs/retrieval/internal/index"
	"github.com/smartdocs/retrieval/internal/log"
	"github.com/smartdocs/retrieval/internal/rerank"
)

var (
	// ErrEmptyQuery indicates a search with no query text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrNoPassages indicates a document whose text produced no passages.
	ErrNoPassages = errors.New("document produced no passages")
)

// Over-fetch bounds: reranking sees more candidates than the caller asked
// for, so a passage ranked low by vector similarity can still surface.
const (
	overFetchFactor = 2
	overFetchFloor  = 20
)

// Result is one ranked passage with its document context.
type Result struct {
	ChunkID               string  `json:"chunk_id"`
	DocumentID            string  `json:"document_id"`
	Title                 string  `json:"title"`
	Content               string  `json:"content"`
	ChunkIndex            int     `json:"chunk_index"`
	EmbeddingModelVersion string  `json:"embedding_model_version"`
	Similarity            float64 `json:"similarity"`
	RerankScore           float64 `json:"rerank_score,omitempty"`
	FinalScore            float64 `json:"final_score,omitempty"`
}

// RerankInfo reports what reranking did during a Retrieve call.
type RerankInfo struct {
	Enabled bool          `json:"enabled"`
	Method  string        `json:"method,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// RetrieveResult bundles ranked passages with rerank metadata.
type RetrieveResult struct {
	Results []Result   `json:"results"`
	Rerank  RerankInfo `json:"rerank"`
}

// Pipeline wires the retrieval components together for one embedding model
// version.
type Pipeline struct {
	store    document.Store
	index    *index.Service
	reranker *rerank.Reranker
	cache    *SearchCache

	chunkStrategy string // "auto" or a named strategy
	chunkSize     int
	chunkOpts     chunk.Options

	logger log.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithReranker enables reranking in Retrieve.
func WithReranker(r *rerank.Reranker) PipelineOption {
	return func(p *Pipeline) { p.reranker = r }
}

// WithSearchCache caches search results in Redis.
func WithSearchCache(c *SearchCache) PipelineOption {
	return func(p *Pipeline) { p.cache = c }
}

// WithChunking overrides the default chunking configuration. An empty
// strategy or non-positive size keeps the current value.
func WithChunking(strategy string, targetSize int, opts chunk.Options) PipelineOption {
	return func(p *Pipeline) {
		if strategy != "" {
			p.chunkStrategy = strategy
		}
		if targetSize > 0 {
			p.chunkSize = targetSize
		}
		p.chunkOpts = opts
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger log.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates a pipeline over the given store and index service.
func NewPipeline(store document.Store, idx *index.Service, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:         store,
		index:         idx,
		reranker:      rerank.New(),
		chunkStrategy: "auto",
		chunkSize:     1000,
		logger:        log.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ModelVersion returns the embedding model version the pipeline serves.
func (p *Pipeline) ModelVersion() string { return p.index.ModelVersion() }

// Ingest chunks, embeds, and indexes a document. Callers that own document
// identity pass their identifier; an empty docID gets a fresh one. The
// returned document carries the final status; on failure the status is failed
// with a truncated error message, and the error is also returned.
func (p *Pipeline) Ingest(ctx context.Context, docID, title, text string) (document.Document, error) {
	if docID == "" {
		docID = document.NewID()
	}
	doc := document.Document{
		ID:                    docID,
		Title:                 title,
		Status:                document.StatusProcessing,
		EmbeddingModelVersion: p.index.ModelVersion(),
	}
	if err := p.store.PutDocument(ctx, doc); err != nil {
		return doc, fmt.Errorf("storing document: %w", err)
	}
	return p.ingestText(ctx, doc, text)
}

// ingestText chunks, stores, and indexes a document's text. The document is
// already stored with status processing.
func (p *Pipeline) ingestText(ctx context.Context, doc document.Document, text string) (document.Document, error) {
	strategy := p.resolveStrategy(text)
	passages := chunk.Split(ctx, text, p.chunkSize, strategy, p.chunkOpts)
	if len(passages) == 0 {
		return p.failIngest(ctx, doc, ErrNoPassages)
	}

	chunks := make([]document.Chunk, len(passages))
	for i, passage := range passages {
		chunks[i] = document.Chunk{
			ID:                    document.NewID(),
			DocumentID:            doc.ID,
			Index:                 i,
			Content:               passage,
			EmbeddingModelVersion: doc.EmbeddingModelVersion,
			VectorID:              -1,
		}
	}
	if err := p.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return p.failIngest(ctx, doc, fmt.Errorf("storing chunks: %w", err))
	}

	added, err := p.index.AddChunks(ctx, chunks)
	if err != nil {
		return p.failIngest(ctx, doc, fmt.Errorf("indexing chunks: %w", err))
	}
	if err := p.index.Save(ctx); err != nil {
		return p.failIngest(ctx, doc, fmt.Errorf("persisting index: %w", err))
	}

	doc.Status = document.StatusProcessed
	if err := p.store.PutDocument(ctx, doc); err != nil {
		return doc, fmt.Errorf("storing document: %w", err)
	}

	p.invalidateSearchCache(ctx)
	p.logger.Info("document ingested",
		"document_id", doc.ID,
		"title", doc.Title,
		"strategy", strategy.String(),
		"passages", len(passages),
		"indexed", added)
	return doc, nil
}

// Reingest re-chunks and re-indexes an existing document, replacing its
// stored passages. Vectors from the previous ingestion stay in the index and
// are filtered at query time once their chunks are gone.
func (p *Pipeline) Reingest(ctx context.Context, docID, text string) (document.Document, error) {
	doc, err := p.store.GetDocument(ctx, docID)
	if err != nil {
		return document.Document{}, err
	}

	doc.Status = document.StatusProcessing
	doc.ErrorMessage = ""
	doc.EmbeddingModelVersion = p.index.ModelVersion()
	if err := p.store.PutDocument(ctx, doc); err != nil {
		return doc, fmt.Errorf("storing document: %w", err)
	}
	return p.ingestText(ctx, doc, text)
}

// failIngest marks the document failed and stores it. The original error is
// returned for the caller; the stored message is truncated.
func (p *Pipeline) failIngest(ctx context.Context, doc document.Document, cause error) (document.Document, error) {
	doc.SetFailure(cause.Error())
	if putErr := p.store.PutDocument(ctx, doc); putErr != nil {
		p.logger.Error("storing failed document status",
			"document_id", doc.ID,
			"error", putErr)
	}
	return doc, cause
}

func (p *Pipeline) resolveStrategy(text string) chunk.Strategy {
	if p.chunkStrategy == "auto" || p.chunkStrategy == "" {
		return chunk.SelectStrategy(text, p.chunkOpts)
	}
	strategy, err := chunk.ParseStrategy(p.chunkStrategy)
	if err != nil {
		p.logger.Warn("unknown configured strategy, selecting automatically", "strategy", p.chunkStrategy)
		return chunk.SelectStrategy(text, p.chunkOpts)
	}
	return strategy
}

// Search embeds the query and returns up to topK passages by similarity,
// serving repeated queries from the cache.
func (p *Pipeline) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, nil
	}

	if p.cache != nil {
		if results, ok := p.cache.Get(ctx, query, topK); ok {
			return results, nil
		}
	}

	matches, err := p.index.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		result := Result{
			ChunkID:               m.Chunk.ID,
			DocumentID:            m.Chunk.DocumentID,
			Content:               m.Chunk.Content,
			ChunkIndex:            m.Chunk.Index,
			EmbeddingModelVersion: m.Chunk.EmbeddingModelVersion,
			Similarity:            float64(m.Similarity),
		}
		if doc, docErr := p.store.GetDocument(ctx, m.Chunk.DocumentID); docErr == nil {
			result.Title = doc.Title
		}
		results = append(results, result)
	}

	if p.cache != nil {
		p.cache.Put(ctx, query, topK, results)
	}
	return results, nil
}

// Retrieve searches with over-fetch and optionally reranks. rerankTopK <= 0
// means topK. Reranking is best effort: when it cannot improve the order the
// similarity ranking comes back unchanged.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int, rerankEnabled bool, method rerank.Method, rerankTopK int) (*RetrieveResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		return &RetrieveResult{}, nil
	}

	fetchK := topK
	if rerankEnabled {
		fetchK = max(overFetchFactor*topK, overFetchFloor)
	}

	results, err := p.Search(ctx, query, fetchK)
	if err != nil {
		return nil, err
	}

	if !rerankEnabled {
		if topK < len(results) {
			results = results[:topK]
		}
		return &RetrieveResult{Results: results, Rerank: RerankInfo{Enabled: false}}, nil
	}

	finalK := rerankTopK
	if finalK <= 0 {
		finalK = topK
	}

	candidates := make([]rerank.Candidate, len(results))
	for i, r := range results {
		candidates[i] = rerank.Candidate{
			ID:         r.ChunkID,
			Title:      r.Title,
			Content:    r.Content,
			Similarity: r.Similarity,
		}
	}

	start := time.Now()
	ranked := p.reranker.Rerank(ctx, query, candidates, method, finalK)
	elapsed := time.Since(start)

	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	out := make([]Result, 0, len(ranked))
	for _, c := range ranked {
		r := byID[c.ID]
		r.RerankScore = c.RerankScore
		r.FinalScore = c.FinalScore
		out = append(out, r)
	}

	return &RetrieveResult{
		Results: out,
		Rerank: RerankInfo{
			Enabled: true,
			Method:  method.String(),
			Elapsed: elapsed,
		},
	}, nil
}

// DeleteDocument removes a document with its passages and drops cached
// search results. Index entries pointing at the deleted passages stay in the
// index and are filtered out at query time.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	if err := p.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	p.invalidateSearchCache(ctx)
	return nil
}

func (p *Pipeline) invalidateSearchCache(ctx context.Context) {
	if p.cache == nil {
		return
	}
	if err := p.cache.InvalidateAll(ctx); err != nil {
		p.logger.Warn("invalidating search cache failed", "error", err)
	}
}
