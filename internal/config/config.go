// Package config provides retrieval engine configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.smartdocs/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Embedding: provider selection, model version, API credentials, rate limit
//   - Storage: vector index directory and Redis connection
//   - Cache: TTLs for embedding, search result, and index freshness entries
//   - Chunking: default strategy, target size, overlap
//   - Rerank: score fusion weights per method
//
// Security: sensitive fields (API key, Redis password) are masked in MarshalJSON.
// Validation: range checks in validation.go returning sentinel errors for errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the embedding provider is not supported.
	ErrInvalidProvider = errors.New("invalid embedding provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelVersion indicates the embedding model version is empty.
	ErrInvalidModelVersion = errors.New("invalid embedding model version")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidRedisAddr indicates the Redis address is empty.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidStoreDir indicates the vector store directory is empty.
	ErrInvalidStoreDir = errors.New("invalid vector store directory")

	// ErrInvalidTTL indicates a cache TTL is not positive.
	ErrInvalidTTL = errors.New("invalid cache TTL")

	// ErrInvalidRetryPolicy indicates the embedding retry policy is out of range.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")

	// ErrInvalidChunkSize indicates the chunk target size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk target size")

	// ErrInvalidChunkStrategy indicates the chunk strategy name is unknown.
	ErrInvalidChunkStrategy = errors.New("invalid chunk strategy")

	// ErrInvalidFusionWeights indicates a rerank weight pair does not sum to 1.
	ErrInvalidFusionWeights = errors.New("invalid fusion weights")
)

// Embedding provider identifiers used in Config.Provider.
const (
	// ProviderAPI embeds through an OpenAI-compatible HTTP endpoint.
	ProviderAPI = "api"

	// ProviderLocal embeds through a local inference server exposing the
	// same API surface (BaseURL required).
	ProviderLocal = "local"

	// ProviderTest produces deterministic vectors without network access.
	ProviderTest = "test"
)

// FusionWeights combines an original similarity score with a reranker score.
// Original + Rerank must sum to 1.
type FusionWeights struct {
	Original float64 `mapstructure:"original" json:"original"`
	Rerank   float64 `mapstructure:"rerank" json:"rerank"`
}

// RerankConfig holds the fusion weights for each reranking method.
type RerankConfig struct {
	BM25         FusionWeights `mapstructure:"bm25" json:"bm25"`
	KeywordBoost FusionWeights `mapstructure:"keyword_boost" json:"keyword_boost"`
	CrossEncoder FusionWeights `mapstructure:"cross_encoder" json:"cross_encoder"`
	LLM          FusionWeights `mapstructure:"llm" json:"llm"`
}

// Config stores retrieval engine configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Embedding provider configuration
	Provider          string  `mapstructure:"provider" json:"provider"` // "api" (default), "local", "test"
	ModelVersion      string  `mapstructure:"model_version" json:"model_version"`
	APIKey            string  `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	BaseURL           string  `mapstructure:"base_url" json:"base_url"`
	Dimension         int     `mapstructure:"dimension" json:"dimension"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`

	// Embedding retry policy
	RetryMaxTries      int           `mapstructure:"retry_max_tries" json:"retry_max_tries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay"`
	RetryBackoffFactor float64       `mapstructure:"retry_backoff_factor" json:"retry_backoff_factor"`

	// Storage configuration
	VectorStoreDir string `mapstructure:"vector_store_dir" json:"vector_store_dir"`
	RedisAddr      string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword  string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB        int    `mapstructure:"redis_db" json:"redis_db"`

	// Cache TTLs
	EmbeddingCacheTTL time.Duration `mapstructure:"embedding_cache_ttl" json:"embedding_cache_ttl"`
	SearchCacheTTL    time.Duration `mapstructure:"search_cache_ttl" json:"search_cache_ttl"`
	IndexMarkerTTL    time.Duration `mapstructure:"index_marker_ttl" json:"index_marker_ttl"`

	// Chunking defaults
	ChunkStrategy     string  `mapstructure:"chunk_strategy" json:"chunk_strategy"` // "auto" or a named strategy
	ChunkTargetSize   int     `mapstructure:"chunk_target_size" json:"chunk_target_size"`
	ChunkOverlapRatio float64 `mapstructure:"chunk_overlap_ratio" json:"chunk_overlap_ratio"`

	// Rerank score fusion weights
	Rerank RerankConfig `mapstructure:"rerank" json:"rerank"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".smartdocs")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration populated with defaults only, bypassing the
// filesystem and environment. Intended for tests and embedded use.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("BUG: default configuration failed to unmarshal: %v", err))
	}
	return &cfg
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Embedding defaults
	v.SetDefault("provider", ProviderAPI)
	v.SetDefault("model_version", "text-embedding-3-small")
	v.SetDefault("dimension", 1536)
	v.SetDefault("requests_per_second", 10.0)

	// Retry defaults
	v.SetDefault("retry_max_tries", 3)
	v.SetDefault("retry_base_delay", 1500*time.Millisecond)
	v.SetDefault("retry_backoff_factor", 2.0)

	// Storage defaults
	v.SetDefault("vector_store_dir", filepath.Join("data", "vector_store"))
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	// Cache TTL defaults
	v.SetDefault("embedding_cache_ttl", 24*time.Hour)
	v.SetDefault("search_cache_ttl", time.Hour)
	v.SetDefault("index_marker_ttl", 7*24*time.Hour)

	// Chunking defaults
	v.SetDefault("chunk_strategy", "auto")
	v.SetDefault("chunk_target_size", 1000)
	v.SetDefault("chunk_overlap_ratio", 0.1)

	// Rerank fusion weight defaults
	v.SetDefault("rerank.bm25.original", 0.5)
	v.SetDefault("rerank.bm25.rerank", 0.5)
	v.SetDefault("rerank.keyword_boost.original", 0.6)
	v.SetDefault("rerank.keyword_boost.rerank", 0.4)
	v.SetDefault("rerank.cross_encoder.original", 0.3)
	v.SetDefault("rerank.cross_encoder.rerank", 0.7)
	v.SetDefault("rerank.llm.original", 0.4)
	v.SetDefault("rerank.llm.rerank", 0.6)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
// OPENAI_API_KEY is the conventional credential variable; the SMARTDOCS_*
// variables override deployment-specific settings.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key string, envVars ...string) {
		args := append([]string{key}, envVars...)
		if err := v.BindEnv(args...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("api_key", "OPENAI_API_KEY")
	mustBind("provider", "SMARTDOCS_PROVIDER")
	mustBind("model_version", "SMARTDOCS_MODEL_VERSION")
	mustBind("base_url", "SMARTDOCS_BASE_URL")
	mustBind("vector_store_dir", "SMARTDOCS_VECTOR_STORE_DIR")
	mustBind("redis_addr", "SMARTDOCS_REDIS_ADDR")
	mustBind("redis_password", "SMARTDOCS_REDIS_PASSWORD")
	mustBind("log_level", "SMARTDOCS_LOG_LEVEL")
}

// maskedValue is the placeholder for masked sensitive data. Full-width block
// characters avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8 characters
// or fewer are fully masked; longer secrets keep the first and last 2
// characters for debug utility. This defends against accidental logging, not
// against compromised logs.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - APIKey
//   - RedisPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.APIKey = maskSecret(a.APIKey)
	a.RedisPassword = maskSecret(a.RedisPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
