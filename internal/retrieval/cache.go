package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartdocs/retrieval/internal/log"
)

// searchKeyPrefix namespaces cached search results in Redis.
const searchKeyPrefix = "smartdocs:cache:search:"

// SearchCache stores serialized search results keyed by a digest of the
// query, the result count, and the model version. Ingestion and deletion
// invalidate the whole namespace; entries also expire on their own.
type SearchCache struct {
	client       redis.UniversalClient
	modelVersion string
	ttl          time.Duration
	logger       log.Logger
}

// NewSearchCache creates a search result cache. Entries expire after ttl.
func NewSearchCache(client redis.UniversalClient, modelVersion string, ttl time.Duration, logger log.Logger) *SearchCache {
	if logger == nil {
		logger = log.NewNop()
	}
	return &SearchCache{
		client:       client,
		modelVersion: modelVersion,
		ttl:          ttl,
		logger:       logger,
	}
}

// Get returns cached results for the query, or ok=false on a miss. Cache
// errors count as misses.
func (c *SearchCache) Get(ctx context.Context, query string, topK int) ([]Result, bool) {
	data, err := c.client.Get(ctx, c.key(query, topK)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("search cache read failed", "error", err)
		return nil, false
	}

	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("search cache entry corrupt", "error", err)
		return nil, false
	}
	return results, true
}

// Put stores results for the query. Failures are logged, not returned; the
// cache is an optimization.
func (c *SearchCache) Put(ctx context.Context, query string, topK int, results []Result) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("search cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(query, topK), data, c.ttl).Err(); err != nil {
		c.logger.Warn("search cache write failed", "error", err)
	}
}

// InvalidateAll removes every cached search result, across model versions.
func (c *SearchCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, searchKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning search cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("deleting search cache keys: %w", err)
	}
	return nil
}

func (c *SearchCache) key(query string, topK int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", query, topK, c.modelVersion))
	return searchKeyPrefix + hex.EncodeToString(sum[:])
}
