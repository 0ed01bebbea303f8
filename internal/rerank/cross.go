package rerank

import "context"

// CrossScorer rates query-passage pairs jointly, one score per passage.
// Implemented by inference servers hosting a cross-encoder model.
type CrossScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// rerankCrossEncoder scores each candidate with the cross scorer and fuses
// the result with the original similarity. Without a scorer, or when scoring
// fails, LLM scoring takes over.
func (r *Reranker) rerankCrossEncoder(ctx context.Context, query string, candidates []Candidate) []Candidate {
	if r.cross == nil {
		r.logger.Warn("no cross-encoder configured, falling back to llm scoring")
		return r.rerankLLMScore(ctx, query, candidates)
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Content
	}

	scores, err := r.cross.Score(ctx, query, passages)
	if err != nil || len(scores) != len(candidates) {
		r.logger.Warn("cross-encoder scoring failed, falling back to llm scoring",
			"error", err,
			"scores", len(scores),
			"candidates", len(candidates))
		return r.rerankLLMScore(ctx, query, candidates)
	}

	for i := range candidates {
		candidates[i].RerankScore = scores[i]
		candidates[i].FinalScore = fuse(r.weights.CrossEncoder, candidates[i].Similarity, scores[i])
	}

	sortByFinal(candidates)
	return candidates
}
