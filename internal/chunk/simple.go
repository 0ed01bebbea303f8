package chunk

import "strings"

// sentenceBoundaries lists window-end break points in preference order:
// paragraph break, then full stops, question and exclamation marks in both
// CJK and Latin forms, then semicolons, commas, and finally any space.
var sentenceBoundaries = []string{
	"\n\n",
	"。",
	"？",
	"?",
	"！",
	"!",
	"；",
	";",
	"，",
	",",
	" ",
}

// lookbackRunes are the fallback break characters scanned for when none of
// the preferred boundaries appear inside the window.
const lookbackRunes = ".!?\n"

// splitSimple cuts fixed-size windows advanced by targetSize−overlap,
// preferring to end each window at a sentence boundary found in the second
// half of the window.
func splitSimple(text string, targetSize int, overlapRatio, lookbackRatio float64) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	overlap := int(float64(targetSize) * overlapRatio)
	lookback := int(float64(targetSize) * lookbackRatio)

	var chunks []string
	start := 0
	for start < n {
		end := min(start+targetSize, n)

		if end < n {
			end = adjustToBoundary(runes, start, end, targetSize, lookback)
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}

		// Forward progress is mandatory: a large overlap or a boundary found
		// at the window start must not stall the loop.
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = min(next, n)

		if end >= n {
			break
		}
	}

	return chunks
}

// adjustToBoundary moves the window end backward to the best break point.
// Preferred boundaries are searched in the second half of the window; if none
// match, a bounded lookback scan settles for any sentence-final character.
func adjustToBoundary(runes []rune, start, end, targetSize, lookback int) int {
	half := start + targetSize/2

	for _, boundary := range sentenceBoundaries {
		if pos := lastIndexRunes(runes, []rune(boundary), half, end); pos > start {
			return pos + len([]rune(boundary))
		}
	}

	floor := max(start, end-lookback)
	for i := end - 1; i > floor; i-- {
		if strings.ContainsRune(lookbackRunes, runes[i]) {
			return i + 1
		}
	}

	return end
}

// lastIndexRunes returns the start of the last occurrence of sub within
// runes[lo:hi), or -1.
func lastIndexRunes(runes, sub []rune, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	if hi > len(runes) {
		hi = len(runes)
	}
	for i := hi - len(sub); i >= lo; i-- {
		match := true
		for j := range sub {
			if runes[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
