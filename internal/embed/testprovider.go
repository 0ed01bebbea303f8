package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// TestProvider produces deterministic unit vectors derived from a digest of
// the input text. Equal texts always embed identically and similar texts do
// not, which is enough for exercising index and pipeline behavior without
// network access.
type TestProvider struct {
	modelVersion string
	dimension    int
}

// NewTestProvider creates a deterministic provider.
func NewTestProvider(modelVersion string, dimension int) *TestProvider {
	return &TestProvider{modelVersion: modelVersion, dimension: dimension}
}

// Embed derives one vector per text.
func (p *TestProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.derive(text)
	}
	return vectors, nil
}

// Dimension returns the configured vector dimension.
func (p *TestProvider) Dimension() int { return p.dimension }

// ModelVersion returns the model identifier.
func (p *TestProvider) ModelVersion() string { return p.modelVersion }

// derive expands a hash chain over the text into a unit vector.
func (p *TestProvider) derive(text string) []float32 {
	vec := make([]float32, p.dimension)

	seed := sha256.Sum256([]byte(p.modelVersion + ":" + text))
	block := seed
	var norm float64
	for i := range vec {
		off := (i * 4) % len(block)
		if i > 0 && off == 0 {
			block = sha256.Sum256(block[:])
		}
		bits := binary.BigEndian.Uint32(block[off : off+4])
		// Map to [-1, 1).
		v := float32(int32(bits)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
