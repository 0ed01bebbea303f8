// Package embed turns passages and queries into dense vectors.
//
// A Provider produces raw embeddings; the Service wraps a provider with a
// content-addressed Redis cache, a retry policy with exponential backoff, and
// a client-side rate limiter. Vectors are cached per (text, model version)
// pair so a model upgrade never serves stale vectors.
package embed

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/smartdocs/retrieval/internal/config"
	"github.com/smartdocs/retrieval/internal/log"
)

var (
	// ErrNoProvider indicates no embedding provider is configured.
	ErrNoProvider = errors.New("no embedding provider configured")

	// ErrEmbeddingFailed indicates the provider returned no usable vectors.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrDimensionMismatch indicates a vector with an unexpected dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider produces embeddings for a batch of texts. Implementations must
// return exactly one vector per input text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelVersion() string
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderAPI, config.ProviderLocal:
		return NewAPIProvider(cfg), nil
	case config.ProviderTest:
		return NewTestProvider(cfg.ModelVersion, cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: provider %q", ErrNoProvider, cfg.Provider)
	}
}

// Service embeds texts through a provider, consulting the cache first and
// retrying transient provider failures.
type Service struct {
	provider Provider
	cache    *Cache
	policy   RetryPolicy
	limiter  *rate.Limiter
	logger   log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches a Redis-backed vector cache.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRateLimit caps provider calls at rps requests per second.
func WithRateLimit(rps float64) Option {
	return func(s *Service) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates an embedding service around provider.
func NewService(provider Provider, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}

	s := &Service{
		provider: provider,
		policy:   DefaultRetryPolicy(),
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dimension returns the provider's vector dimension.
func (s *Service) Dimension() int { return s.provider.Dimension() }

// ModelVersion returns the provider's model version identifier.
func (s *Service) ModelVersion() string { return s.provider.ModelVersion() }

// EmbedQuery embeds a single text.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds a batch of texts, serving cache hits without touching the
// provider. The result holds one vector per input text, in input order.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if s.cache != nil {
			if vec, err := s.cache.Get(ctx, text); err != nil {
				s.logger.Warn("embedding cache read failed", "error", err)
			} else if vec != nil {
				vectors[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	var fresh [][]float32
	err := s.policy.Do(ctx, s.logger, "embed", func() error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var embedErr error
		fresh, embedErr = s.provider.Embed(ctx, missTexts)
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(fresh), len(missTexts))
	}

	dim := s.provider.Dimension()
	for j, vec := range fresh {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
		}
		vectors[missIdx[j]] = vec
		if s.cache != nil {
			if err := s.cache.Put(ctx, missTexts[j], vec); err != nil {
				s.logger.Warn("embedding cache write failed", "error", err)
			}
		}
	}

	return vectors, nil
}
