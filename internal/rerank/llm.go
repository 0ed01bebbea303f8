package rerank

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ChatModel is the slice of a language model the reranker needs: one prompt
// in, one completion out.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Prompt construction limits.
const (
	orderContentLimit = 300 // runes of passage content shown when ordering
	scoreContentLimit = 200 // runes of passage content shown when scoring
	scoreBatchSize    = 5   // passages scored per model call
)

// neutralScore is assumed for passages whose score cannot be parsed.
const neutralScore = 0.5

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// rerankLLMOrder asks the model for a full permutation of the candidates.
// The permutation is validated (in-range, deduplicated, missing positions
// appended); rank position i maps to score 1-i/n. Unusable output falls back
// to rerankLLMScore.
func (r *Reranker) rerankLLMOrder(ctx context.Context, query string, candidates []Candidate) []Candidate {
	if r.chat == nil {
		r.logger.Warn("no chat model configured, keeping incoming order", "method", "llm_rerank")
		return candidates
	}

	answer, err := r.chat.Complete(ctx, orderPrompt(query, candidates))
	if err != nil {
		r.logger.Warn("llm ordering failed, falling back to llm scoring", "error", err)
		return r.rerankLLMScore(ctx, query, candidates)
	}

	order, ok := parseOrder(answer, len(candidates))
	if !ok {
		r.logger.Warn("llm ordering output unusable, falling back to llm scoring", "answer_len", len(answer))
		return r.rerankLLMScore(ctx, query, candidates)
	}

	n := len(candidates)
	out := make([]Candidate, 0, n)
	for rank, idx := range order {
		c := candidates[idx-1]
		c.RerankScore = 1.0 - float64(rank)/float64(n)
		c.FinalScore = fuse(r.weights.LLM, c.Similarity, c.RerankScore)
		out = append(out, c)
	}
	return out
}

func orderPrompt(query string, candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reorder the documents below from most to least relevant to the query %q.\n\nDocuments:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "Document %d: %s\nContent: %s\n\n", i+1, orTitle(c.Title), truncateRunes(c.Content, orderContentLimit))
	}
	b.WriteString("Reply with the document numbers as a list, for example [1, 3, 2]. Reply with the list only.")
	return b.String()
}

// parseOrder extracts a permutation of 1..n from the model output: numbers
// are pulled in order of appearance, out-of-range and duplicate entries are
// dropped, and missing positions are appended in ascending order.
func parseOrder(answer string, n int) ([]int, bool) {
	matches := numberPattern.FindAllString(answer, -1)
	if len(matches) == 0 {
		return nil, false
	}

	order := make([]int, 0, n)
	seen := make(map[int]bool, n)
	for _, m := range matches {
		v, err := strconv.Atoi(m)
		if err != nil || v < 1 || v > n || seen[v] {
			continue
		}
		order = append(order, v)
		seen[v] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}

	if len(order) != n {
		return nil, false
	}
	return order, true
}

// rerankLLMScore scores candidates in batches. Each batch is one model call
// whose output is expected to carry one number per line; a missing or
// unparseable line yields the neutral score with the original similarity as
// the final score. A failed call leaves the whole batch neutral.
func (r *Reranker) rerankLLMScore(ctx context.Context, query string, candidates []Candidate) []Candidate {
	if r.chat == nil {
		r.logger.Warn("no chat model configured, keeping incoming order", "method", "llm_score")
		return candidates
	}

	for start := 0; start < len(candidates); start += scoreBatchSize {
		end := min(start+scoreBatchSize, len(candidates))
		batch := candidates[start:end]

		answer, err := r.chat.Complete(ctx, scorePrompt(query, batch))
		if err != nil {
			r.logger.Warn("llm scoring call failed, keeping original scores for batch",
				"batch_start", start,
				"error", err)
			for i := range batch {
				batch[i].RerankScore = neutralScore
				batch[i].FinalScore = batch[i].Similarity
			}
			continue
		}

		lines := strings.Split(strings.TrimSpace(answer), "\n")
		for i := range batch {
			score, ok := parseScoreLine(lines, i)
			if !ok {
				batch[i].RerankScore = neutralScore
				batch[i].FinalScore = batch[i].Similarity
				continue
			}
			batch[i].RerankScore = score
			batch[i].FinalScore = fuse(r.weights.LLM, batch[i].Similarity, score)
		}
	}

	sortByFinal(candidates)
	return candidates
}

func scorePrompt(query string, batch []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rate the relevance of each document below to the query %q on a scale of 0 to 10.\n\nDocuments:\n", query)
	for i, c := range batch {
		fmt.Fprintf(&b, "Document %d: %s\nContent: %s\n\n", i+1, orTitle(c.Title), truncateRunes(c.Content, scoreContentLimit))
	}
	b.WriteString("Reply with one line per document in the form:\nDocument 1: score\nDocument 2: score\n\nReply with the scores only.")
	return b.String()
}

// parseScoreLine pulls the score out of line i and normalizes it from the
// 0-10 scale to [0, 1]. A label prefix ("Document 1: 7") is skipped so the
// label index is never mistaken for the score.
func parseScoreLine(lines []string, i int) (float64, bool) {
	if i >= len(lines) {
		return 0, false
	}
	line := lines[i]
	if idx := strings.Index(line, ":"); idx >= 0 {
		line = line[idx+1:]
	}
	m := numberPattern.FindString(line)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return clamp01(v / 10.0), true
}

// rerankHybrid boosts by keywords first, then refines the top of the ranking
// with LLM scores, leaving the tail in keyword order.
func (r *Reranker) rerankHybrid(ctx context.Context, query string, candidates []Candidate) []Candidate {
	const refineTop = 10

	boosted := r.rerankKeywordBoost(query, candidates)
	if len(boosted) <= refineTop {
		return r.rerankLLMScore(ctx, query, boosted)
	}

	head := r.rerankLLMScore(ctx, query, boosted[:refineTop])
	return append(head, boosted[refineTop:]...)
}

func orTitle(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
