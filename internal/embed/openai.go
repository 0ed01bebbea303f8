package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smartdocs/retrieval/internal/config"
)

// APIProvider embeds through an OpenAI-compatible endpoint. A custom BaseURL
// points it at a local inference server exposing the same API.
type APIProvider struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewAPIProvider builds a provider from the embedding section of cfg.
func NewAPIProvider(cfg *config.Config) *APIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &APIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.ModelVersion,
		dimension: cfg.Dimension,
	}
}

// Embed requests one vector per text from the endpoint.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(resp.Data), len(texts))
	}

	// The API reports an index per embedding; order by it rather than trusting
	// response order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingFailed, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("%w: no embedding for input %d", ErrEmbeddingFailed, i)
		}
	}
	return vectors, nil
}

// Dimension returns the configured vector dimension.
func (p *APIProvider) Dimension() int { return p.dimension }

// ModelVersion returns the embedding model identifier.
func (p *APIProvider) ModelVersion() string { return p.model }
