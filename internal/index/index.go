// Package index stores passage embeddings in a flat in-memory structure and
// answers nearest-neighbor queries by exact inner-product scan.
//
// One index instance exists per embedding model version. Vectors are
// unit-normalized on insertion, so inner product equals cosine similarity.
// Each inserted vector receives a monotonically increasing dense id that maps
// back to the originating passage; deleting a passage does not shrink the
// index, stale entries are filtered out when results are resolved against the
// document store.
//
// Persistence is gob-based (see persist.go) with a Redis freshness marker
// (see marker.go) that lets other processes detect on-disk changes. The
// Registry (see registry.go) guarantees a single loaded instance per model
// version.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotLoaded indicates no persisted index exists for the version.
	ErrNotLoaded = errors.New("index not loaded")
)

// Hit is one raw search result: a dense id, the passage id recorded for it,
// and the inner-product similarity.
type Hit struct {
	DenseID int64
	ChunkID string
	Score   float32
}

// Flat is an exact inner-product index. Safe for concurrent use.
type Flat struct {
	mu       sync.RWMutex
	dim      int
	vectors  []float32 // row-major, len = count*dim, unit-normalized
	chunkIDs []string  // dense id -> chunk id
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dimension returns the vector dimension.
func (f *Flat) Dimension() int { return f.dim }

// Size returns the number of stored vectors.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.chunkIDs)
}

// Add inserts one vector per chunk id and returns the assigned dense ids.
// Vectors are normalized in place.
func (f *Flat) Add(vecs [][]float32, chunkIDs []string) ([]int64, error) {
	if len(vecs) != len(chunkIDs) {
		return nil, fmt.Errorf("got %d vectors for %d chunk ids", len(vecs), len(chunkIDs))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, 0, len(vecs))
	for i, vec := range vecs {
		if len(vec) != f.dim {
			return ids, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), f.dim)
		}
		normalize(vec)
		f.vectors = append(f.vectors, vec...)
		f.chunkIDs = append(f.chunkIDs, chunkIDs[i])
		ids = append(ids, int64(len(f.chunkIDs)-1))
	}
	return ids, nil
}

// Search returns the topK most similar entries in strictly descending score
// order. The result holds at most min(topK, Size()) hits.
func (f *Flat) Search(query []float32, topK int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.chunkIDs)
	if n == 0 {
		return nil, nil
	}

	hits := make([]Hit, n)
	for i := range n {
		row := f.vectors[i*f.dim : (i+1)*f.dim]
		hits[i] = Hit{
			DenseID: int64(i),
			ChunkID: f.chunkIDs[i],
			Score:   dot(q, row),
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].DenseID < hits[b].DenseID
	})

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize scales vec to unit length. Zero vectors are left untouched.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
