package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/smartdocs/retrieval/internal/document"
	"github.com/smartdocs/retrieval/internal/log"
)

// addBatchSize bounds how many passages are embedded per provider call.
const addBatchSize = 10

// Embedder is the slice of the embedding service the index needs.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelVersion() string
}

// Match is a search result resolved against the document store.
type Match struct {
	Chunk      document.Chunk
	Similarity float32
}

// Service ties a Flat index to an embedder and the document store for one
// model version. Adding passages embeds and indexes them; searching embeds
// the query, scans the index, and resolves dense ids back to live passages.
type Service struct {
	flat      *Flat
	embedder  Embedder
	store     document.Store
	freshness *Freshness
	dir       string
	version   string
	logger    log.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFreshness checks a Redis marker on load and republishes it on every
// load and save.
func WithFreshness(f *Freshness) ServiceOption {
	return func(s *Service) { s.freshness = f }
}

// WithLogger sets the service logger.
func WithLogger(logger log.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates an index service for the embedder's model version. A
// previously persisted index is loaded when present and the freshness marker
// agrees with the artifacts on disk; stale or absent artifacts mean the
// service starts empty. The marker is refreshed after a successful load.
func NewService(ctx context.Context, embedder Embedder, store document.Store, dir string, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		embedder: embedder,
		store:    store,
		dir:      dir,
		version:  embedder.ModelVersion(),
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	flat, err := Load(dir, s.version)
	switch {
	case err == nil:
		if flat.Dimension() != embedder.Dimension() {
			return nil, fmt.Errorf("%w: persisted index has dimension %d, embedder produces %d",
				ErrDimensionMismatch, flat.Dimension(), embedder.Dimension())
		}
		if s.staleOnDisk(ctx) {
			s.flat = NewFlat(embedder.Dimension())
			break
		}
		s.flat = flat
		s.logger.Info("loaded persisted index",
			"model_version", s.version,
			"entries", flat.Size())
		s.refreshMarker(ctx)
	case errors.Is(err, ErrNotLoaded):
		s.flat = NewFlat(embedder.Dimension())
	default:
		return nil, err
	}

	return s, nil
}

// staleOnDisk reports whether the published freshness marker disagrees with
// the artifacts on disk. The marker is a hint: check failures count as fresh.
func (s *Service) staleOnDisk(ctx context.Context) bool {
	if s.freshness == nil {
		return false
	}
	fresh, err := s.freshness.Fresh(ctx, s.dir, s.version)
	if err != nil {
		s.logger.Warn("freshness check failed",
			"model_version", s.version,
			"error", err)
		return false
	}
	if !fresh {
		s.logger.Warn("persisted index disagrees with freshness marker, starting empty",
			"model_version", s.version)
	}
	return !fresh
}

// refreshMarker republishes the marker for the current on-disk artifacts.
// Best effort: the marker is never the source of truth.
func (s *Service) refreshMarker(ctx context.Context) {
	if s.freshness == nil {
		return
	}
	if err := s.freshness.Write(ctx, s.dir, s.version, s.flat.Size(), s.flat.Dimension()); err != nil {
		s.logger.Warn("refreshing freshness marker failed",
			"model_version", s.version,
			"error", err)
	}
}

// ModelVersion returns the model version this service indexes for.
func (s *Service) ModelVersion() string { return s.version }

// Size returns the number of indexed vectors, including stale entries.
func (s *Service) Size() int { return s.flat.Size() }

// AddChunks embeds and indexes passages in sub-batches. When a batch call
// fails, its passages are retried one at a time so a single failing passage
// cannot drop its neighbors; passages that still fail are skipped and logged.
// Each indexed passage has its dense id written back to the store.
func (s *Service) AddChunks(ctx context.Context, chunks []document.Chunk) (added int, err error) {
	for start := 0; start < len(chunks); start += addBatchSize {
		end := min(start+addBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vecs, embedErr := s.embedder.EmbedTexts(ctx, texts)
		if embedErr != nil {
			if ctx.Err() != nil {
				return added, ctx.Err()
			}
			s.logger.Warn("batch embedding failed, retrying passages individually",
				"model_version", s.version,
				"batch_start", start,
				"batch_size", len(batch),
				"error", embedErr)
			n, itemErr := s.addOneByOne(ctx, batch)
			added += n
			if itemErr != nil {
				return added, itemErr
			}
			continue
		}

		chunkIDs := make([]string, len(batch))
		for i, c := range batch {
			chunkIDs[i] = c.ID
		}
		denseIDs, addErr := s.flat.Add(vecs, chunkIDs)
		if addErr != nil {
			return added, fmt.Errorf("indexing batch at %d: %w", start, addErr)
		}

		for i, denseID := range denseIDs {
			s.recordDenseID(ctx, batch[i].ID, denseID)
		}
		added += len(denseIDs)
	}
	return added, nil
}

// addOneByOne embeds and indexes passages individually, skipping the ones
// that fail. Only context cancellation aborts the walk.
func (s *Service) addOneByOne(ctx context.Context, batch []document.Chunk) (int, error) {
	var added int
	for _, c := range batch {
		vecs, err := s.embedder.EmbedTexts(ctx, []string{c.Content})
		if err != nil {
			if ctx.Err() != nil {
				return added, ctx.Err()
			}
			s.logger.Warn("skipping passage after embedding failure",
				"chunk_id", c.ID,
				"error", err)
			continue
		}
		denseIDs, addErr := s.flat.Add(vecs, []string{c.ID})
		if addErr != nil {
			return added, fmt.Errorf("indexing chunk %s: %w", c.ID, addErr)
		}
		s.recordDenseID(ctx, c.ID, denseIDs[0])
		added++
	}
	return added, nil
}

func (s *Service) recordDenseID(ctx context.Context, chunkID string, denseID int64) {
	if err := s.store.SetChunkVectorID(ctx, chunkID, denseID); err != nil {
		s.logger.Warn("recording dense id failed",
			"chunk_id", chunkID,
			"dense_id", denseID,
			"error", err)
	}
}

// Search embeds the query and returns up to topK matches in descending
// similarity order. Hits whose passages no longer exist or cannot be resolved
// are dropped; hits whose passages were embedded under a different model
// version are dropped and counted.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.flat.Search(vec, topK)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	var missing, mismatched int
	for _, hit := range hits {
		chunk, getErr := s.store.GetChunk(ctx, hit.ChunkID)
		if getErr != nil {
			if !errors.Is(getErr, document.ErrNotFound) {
				s.logger.Warn("resolving chunk failed",
					"chunk_id", hit.ChunkID,
					"error", getErr)
			}
			missing++
			continue
		}
		if chunk.EmbeddingModelVersion != "" && chunk.EmbeddingModelVersion != s.version {
			mismatched++
			continue
		}
		matches = append(matches, Match{Chunk: chunk, Similarity: hit.Score})
	}

	if missing > 0 || mismatched > 0 {
		s.logger.Debug("dropped stale index hits",
			"model_version", s.version,
			"missing", missing,
			"version_mismatch", mismatched)
	}
	return matches, nil
}

// Save persists the index and publishes a freshness marker.
func (s *Service) Save(ctx context.Context) error {
	if err := s.flat.Save(s.dir, s.version); err != nil {
		return err
	}
	if s.freshness != nil {
		if err := s.freshness.Write(ctx, s.dir, s.version, s.flat.Size(), s.flat.Dimension()); err != nil {
			return err
		}
	}
	return nil
}

// Reset discards all in-memory entries, keeping dimension and version.
func (s *Service) Reset() {
	s.flat = NewFlat(s.embedder.Dimension())
}

// DeleteArtifacts removes the persisted files and the freshness marker.
func (s *Service) DeleteArtifacts(ctx context.Context) error {
	if err := DeleteArtifacts(s.dir, s.version); err != nil {
		return err
	}
	if s.freshness != nil {
		if err := s.freshness.Invalidate(ctx, s.version); err != nil {
			return err
		}
	}
	return nil
}
