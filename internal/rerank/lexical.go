package rerank

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters. Candidate sets are small, so document length is measured
// against a fixed assumed average instead of corpus statistics.
const (
	bm25K1     = 1.5
	bm25B      = 0.75
	bm25AvgLen = 100.0
)

// tokenize lowercases and splits text into word tokens. Latin-script tokens
// shorter than two characters are dropped; Han runes carry meaning alone and
// are emitted as single-rune tokens.
func tokenize(text string) []string {
	var tokens []string
	var word []rune

	flush := func() {
		if len(word) > 1 {
			tokens = append(tokens, string(word))
		}
		word = word[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			word = append(word, r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// rerankBM25 scores each candidate's content against the query terms and
// fuses the BM25 score with the original similarity.
func (r *Reranker) rerankBM25(query string, candidates []Candidate) []Candidate {
	queryTerms := tokenize(query)
	n := len(candidates)

	for i := range candidates {
		score := bm25Score(queryTerms, tokenize(candidates[i].Content), n)
		candidates[i].RerankScore = score
		candidates[i].FinalScore = fuse(r.weights.BM25, candidates[i].Similarity, score)
	}

	sortByFinal(candidates)
	return candidates
}

// bm25Score computes a simplified BM25 with a flat IDF: every query term is
// assumed to appear in one document of the candidate set.
func bm25Score(queryTerms, docTerms []string, corpusSize int) float64 {
	counts := make(map[string]int, len(docTerms))
	for _, term := range docTerms {
		counts[term]++
	}

	docLen := float64(len(docTerms))
	idf := math.Log(float64(corpusSize+1) / 2.0)

	var score float64
	for _, term := range queryTerms {
		tf := float64(counts[term])
		if tf == 0 {
			continue
		}
		numerator := tf * (bm25K1 + 1)
		denominator := tf + bm25K1*(1-bm25B+bm25B*docLen/bm25AvgLen)
		score += idf * numerator / denominator
	}
	return score
}

// rerankKeywordBoost rewards query term coverage in content and title (title
// counts double) plus flat bonuses for exact phrase matches.
func (r *Reranker) rerankKeywordBoost(query string, candidates []Candidate) []Candidate {
	queryLower := strings.ToLower(query)
	queryTerms := toSet(tokenize(query))

	for i := range candidates {
		contentLower := strings.ToLower(candidates[i].Content)
		titleLower := strings.ToLower(candidates[i].Title)

		var contentMatches, titleMatches float64
		if len(queryTerms) > 0 {
			contentMatches = overlap(queryTerms, toSet(tokenize(contentLower))) / float64(len(queryTerms))
			titleMatches = overlap(queryTerms, toSet(tokenize(titleLower))) / float64(len(queryTerms))
		}

		var phraseBonus, titlePhraseBonus float64
		if strings.Contains(contentLower, queryLower) {
			phraseBonus = 1.0
		}
		if strings.Contains(titleLower, queryLower) {
			titlePhraseBonus = 2.0
		}

		score := contentMatches + 2*titleMatches + phraseBonus + titlePhraseBonus
		candidates[i].RerankScore = score
		candidates[i].FinalScore = fuse(r.weights.KeywordBoost, candidates[i].Similarity, score)
	}

	sortByFinal(candidates)
	return candidates
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) float64 {
	var n int
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return float64(n)
}
