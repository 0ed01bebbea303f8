package chunk

import (
	"context"
	"strings"
	"unicode/utf8"
)

// splitModel asks the scorer to choose among candidate break positions near
// the target size, keeping the candidate whose leading segment scores as most
// semantically complete. Without a scorer, or when scoring fails, the
// Paragraph strategy takes over.
func splitModel(ctx context.Context, text string, targetSize int, scorer BoundaryScorer) []string {
	if scorer == nil {
		return splitParagraph(text, targetSize)
	}

	runes := []rune(text)
	n := len(runes)
	if n <= targetSize {
		if piece := strings.TrimSpace(text); piece != "" {
			return []string{piece}
		}
		return nil
	}

	var chunks []string
	start := 0
	for start < n {
		remaining := n - start
		if remaining <= targetSize {
			if piece := strings.TrimSpace(string(runes[start:])); piece != "" {
				chunks = append(chunks, piece)
			}
			break
		}

		end, err := bestBreak(ctx, runes, start, targetSize, scorer)
		if err != nil {
			// Scoring is best effort. Fall back for the rest of the text and
			// keep whatever was already produced.
			rest := splitParagraph(string(runes[start:]), targetSize)
			return append(chunks, rest...)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end <= start {
			end = start + 1
		}
		start = end
	}

	return chunks
}

// bestBreak scores candidate cut points between 70% and 130% of the target
// size and returns the highest-scoring one. Candidates snap to the nearest
// sentence boundary so the scorer compares complete sentences.
func bestBreak(ctx context.Context, runes []rune, start, targetSize int, scorer BoundaryScorer) (int, error) {
	n := len(runes)
	lo := start + targetSize*7/10
	hi := min(start+targetSize*13/10, n)

	candidates := breakCandidates(runes, lo, hi)
	if len(candidates) == 0 {
		return min(start+targetSize, n), nil
	}

	best := candidates[0]
	bestScore := -1.0
	for _, cand := range candidates {
		score, err := scorer.ScoreSegment(ctx, string(runes[start:cand]))
		if err != nil {
			return 0, err
		}
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best, nil
}

// breakCandidates lists positions just after a sentence-final rune within
// [lo, hi), capped so a pathological window does not flood the scorer.
func breakCandidates(runes []rune, lo, hi int) []int {
	const maxCandidates = 5

	var out []int
	for i := hi - 1; i >= lo && i >= 0; i-- {
		r := runes[i]
		if strings.ContainsRune(lookbackRunes, r) || r == '。' || r == '？' || r == '！' {
			out = append(out, i+1)
			if len(out) == maxCandidates {
				break
			}
		}
	}
	return out
}

// runeLen is a convenience alias used by the selector.
func runeLen(s string) int { return utf8.RuneCountInString(s) }
