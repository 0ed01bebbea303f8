package config

import (
	"fmt"
	"math"
)

// weightTolerance absorbs float rounding when checking that a fusion weight
// pair sums to 1.
const weightTolerance = 1e-6

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and credentials
	switch c.Provider {
	case ProviderAPI:
		if c.APIKey == "" {
			return fmt.Errorf("%w: set OPENAI_API_KEY or api_key in config.yaml", ErrMissingAPIKey)
		}
	case ProviderLocal:
		if c.BaseURL == "" {
			return fmt.Errorf("%w: provider %q requires base_url", ErrInvalidProvider, c.Provider)
		}
	case ProviderTest:
		// No credentials needed.
	default:
		return fmt.Errorf("%w: %q is not one of: api, local, test", ErrInvalidProvider, c.Provider)
	}

	if c.ModelVersion == "" {
		return fmt.Errorf("%w: model_version cannot be empty", ErrInvalidModelVersion)
	}

	// Dimension bound follows the largest hosted embedding models.
	if c.Dimension < 1 || c.Dimension > 8192 {
		return fmt.Errorf("%w: must be between 1 and 8192, got %d", ErrInvalidDimension, c.Dimension)
	}

	// 2. Retry policy
	if c.RetryMaxTries < 1 || c.RetryMaxTries > 10 {
		return fmt.Errorf("%w: retry_max_tries must be between 1 and 10, got %d", ErrInvalidRetryPolicy, c.RetryMaxTries)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("%w: retry_base_delay must be positive, got %v", ErrInvalidRetryPolicy, c.RetryBaseDelay)
	}
	if c.RetryBackoffFactor < 1.0 {
		return fmt.Errorf("%w: retry_backoff_factor must be >= 1.0, got %.2f", ErrInvalidRetryPolicy, c.RetryBackoffFactor)
	}

	// 3. Storage
	if c.VectorStoreDir == "" {
		return fmt.Errorf("%w: vector_store_dir cannot be empty", ErrInvalidStoreDir)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("%w: redis_addr cannot be empty", ErrInvalidRedisAddr)
	}

	// 4. Cache TTLs
	for name, ttl := range map[string]int64{
		"embedding_cache_ttl": int64(c.EmbeddingCacheTTL),
		"search_cache_ttl":    int64(c.SearchCacheTTL),
		"index_marker_ttl":    int64(c.IndexMarkerTTL),
	} {
		if ttl <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidTTL, name)
		}
	}

	// 5. Chunking
	if c.ChunkTargetSize < 50 || c.ChunkTargetSize > 100000 {
		return fmt.Errorf("%w: must be between 50 and 100,000, got %d", ErrInvalidChunkSize, c.ChunkTargetSize)
	}
	if c.ChunkStrategy != "auto" && !isKnownStrategy(c.ChunkStrategy) {
		return fmt.Errorf("%w: %q is not one of: auto, simple, paragraph, semantic, model", ErrInvalidChunkStrategy, c.ChunkStrategy)
	}

	// 6. Fusion weights
	for name, w := range map[string]FusionWeights{
		"bm25":          c.Rerank.BM25,
		"keyword_boost": c.Rerank.KeywordBoost,
		"cross_encoder": c.Rerank.CrossEncoder,
		"llm":           c.Rerank.LLM,
	} {
		if err := validateWeights(name, w); err != nil {
			return err
		}
	}

	return nil
}

func validateWeights(name string, w FusionWeights) error {
	if w.Original < 0 || w.Original > 1 || w.Rerank < 0 || w.Rerank > 1 {
		return fmt.Errorf("%w: rerank.%s weights must be in [0, 1], got %.2f/%.2f",
			ErrInvalidFusionWeights, name, w.Original, w.Rerank)
	}
	if math.Abs(w.Original+w.Rerank-1.0) > weightTolerance {
		return fmt.Errorf("%w: rerank.%s weights must sum to 1, got %.2f+%.2f",
			ErrInvalidFusionWeights, name, w.Original, w.Rerank)
	}
	return nil
}

// isKnownStrategy reports whether name is a named chunking strategy. The
// chunk package owns the canonical list; this mirror keeps config free of
// domain imports.
func isKnownStrategy(name string) bool {
	switch name {
	case "simple", "paragraph", "semantic", "model":
		return true
	}
	return false
}
