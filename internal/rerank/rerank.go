// Package rerank reorders retrieved passages by combining the original
// similarity score with a method-specific relevance signal.
//
// Six methods exist behind a closed Method enum: lexical scoring (BM25,
// keyword boost), cross-encoder scoring, two LLM-based methods (full
// reordering and batched numeric scoring), and a hybrid that refines the
// keyword-boosted head with LLM scores. Every method fuses its signal with
// the incoming similarity through configured weights and sorts by the fused
// score.
//
// Reranking is best effort: a method that cannot run (missing model, call
// failure, unparseable output) degrades to a cheaper method or, at worst,
// returns the candidates in their incoming order.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smartdocs/retrieval/internal/config"
	"github.com/smartdocs/retrieval/internal/log"
)

// Method identifies a reranking algorithm.
type Method int

const (
	// MethodBM25 scores passages with a simplified BM25 over the candidates.
	MethodBM25 Method = iota

	// MethodKeywordBoost rewards term overlap and exact phrase matches, with
	// title matches weighted double.
	MethodKeywordBoost

	// MethodCrossEncoder scores query-passage pairs with a cross-encoder
	// model, falling back to MethodLLMScore when none is available.
	MethodCrossEncoder

	// MethodLLMOrder asks a language model for a full permutation of the
	// candidates, falling back to MethodLLMScore on unusable output.
	MethodLLMOrder

	// MethodLLMScore asks a language model for a numeric relevance score per
	// passage, batched to bound prompt size.
	MethodLLMScore

	// MethodHybrid applies keyword boosting, then refines the head of the
	// ranking with LLM scores.
	MethodHybrid
)

// String returns the wire name of the method.
func (m Method) String() string {
	switch m {
	case MethodBM25:
		return "bm25"
	case MethodKeywordBoost:
		return "keyword_boost"
	case MethodCrossEncoder:
		return "cross_encoder"
	case MethodLLMOrder:
		return "llm_rerank"
	case MethodLLMScore:
		return "llm_score"
	case MethodHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod maps a wire name to a Method.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bm25":
		return MethodBM25, nil
	case "keyword_boost":
		return MethodKeywordBoost, nil
	case "cross_encoder":
		return MethodCrossEncoder, nil
	case "llm_rerank":
		return MethodLLMOrder, nil
	case "llm_score":
		return MethodLLMScore, nil
	case "hybrid":
		return MethodHybrid, nil
	default:
		return MethodBM25, fmt.Errorf("unknown rerank method %q", name)
	}
}

// Candidate is one passage under consideration. Similarity is the score from
// vector search; RerankScore and FinalScore are filled in by Rerank.
type Candidate struct {
	ID          string
	Title       string
	Content     string
	Similarity  float64
	RerankScore float64
	FinalScore  float64
}

// Reranker applies reranking methods. The zero value supports the lexical
// methods only; attach a chat model and cross scorer for the rest.
type Reranker struct {
	chat    ChatModel
	cross   CrossScorer
	weights config.RerankConfig
	logger  log.Logger
}

// Option configures a Reranker.
type Option func(*Reranker)

// WithChatModel enables the LLM-based methods.
func WithChatModel(chat ChatModel) Option {
	return func(r *Reranker) { r.chat = chat }
}

// WithCrossScorer enables MethodCrossEncoder.
func WithCrossScorer(cross CrossScorer) Option {
	return func(r *Reranker) { r.cross = cross }
}

// WithWeights overrides the default score fusion weights.
func WithWeights(w config.RerankConfig) Option {
	return func(r *Reranker) { r.weights = w }
}

// WithLogger sets the reranker logger.
func WithLogger(logger log.Logger) Option {
	return func(r *Reranker) { r.logger = logger }
}

// New creates a Reranker with the default fusion weights.
func New(opts ...Option) *Reranker {
	r := &Reranker{
		weights: config.Default().Rerank,
		logger:  log.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank reorders candidates with the given method and returns at most topK
// of them (all when topK <= 0). The incoming slice is not modified. When the
// method cannot produce a ranking, candidates come back in their incoming
// order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, method Method, topK int) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	switch method {
	case MethodBM25:
		out = r.rerankBM25(query, out)
	case MethodKeywordBoost:
		out = r.rerankKeywordBoost(query, out)
	case MethodCrossEncoder:
		out = r.rerankCrossEncoder(ctx, query, out)
	case MethodLLMOrder:
		out = r.rerankLLMOrder(ctx, query, out)
	case MethodLLMScore:
		out = r.rerankLLMScore(ctx, query, out)
	case MethodHybrid:
		out = r.rerankHybrid(ctx, query, out)
	default:
		r.logger.Warn("unknown rerank method, keeping incoming order", "method", int(method))
	}

	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out
}

// fuse combines the original similarity with the rerank signal.
func fuse(w config.FusionWeights, similarity, rerankScore float64) float64 {
	return w.Original*similarity + w.Rerank*rerankScore
}

// sortByFinal orders candidates by descending FinalScore, preserving the
// incoming order between equal scores.
func sortByFinal(candidates []Candidate) {
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].FinalScore > candidates[b].FinalScore
	})
}
