package embed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// embeddingKeyPrefix namespaces cached vectors in Redis.
const embeddingKeyPrefix = "smartdocs:cache:embedding:"

// Cache stores embeddings in Redis keyed by a digest of the text and the
// model version, so vectors from different model versions never collide.
// Values are gob-encoded []float32.
type Cache struct {
	client       redis.UniversalClient
	modelVersion string
	ttl          time.Duration
}

// NewCache creates an embedding cache. Entries expire after ttl.
func NewCache(client redis.UniversalClient, modelVersion string, ttl time.Duration) *Cache {
	return &Cache{
		client:       client,
		modelVersion: modelVersion,
		ttl:          ttl,
	}
}

// Get returns the cached vector for text, or nil on a miss.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, error) {
	data, err := c.client.Get(ctx, c.key(text)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached embedding: %w", err)
	}

	var vec []float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vec); err != nil {
		return nil, fmt.Errorf("decoding cached embedding: %w", err)
	}
	return vec, nil
}

// Put stores the vector for text with the cache TTL.
func (c *Cache) Put(ctx context.Context, text string, vec []float32) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vec); err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	if err := c.client.Set(ctx, c.key(text), buf.Bytes(), c.ttl).Err(); err != nil {
		return fmt.Errorf("writing cached embedding: %w", err)
	}
	return nil
}

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(text + ":" + c.modelVersion))
	return embeddingKeyPrefix + hex.EncodeToString(sum[:])
}
