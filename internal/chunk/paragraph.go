package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var paragraphSep = regexp.MustCompile(`\r?\n\s*\r?\n`)

// splitParagraphs divides text on blank-line boundaries, dropping empty
// paragraphs.
func splitParagraphs(text string) []string {
	parts := paragraphSep.Split(text, -1)
	paras := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// splitParagraph greedily packs whole paragraphs into windows of at most
// targetSize runes. A single paragraph larger than the window is handed to
// the Simple strategy with a halved window and reduced overlap.
func splitParagraph(text string, targetSize int) []string {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		size    int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			current = nil
			size = 0
		}
	}

	for _, para := range paras {
		paraLen := utf8.RuneCountInString(para)

		switch {
		case paraLen > targetSize:
			flush()
			chunks = append(chunks, splitSimple(para, max(targetSize/2, 1), 0.05, DefaultLookbackRatio)...)
		case size+paraLen > targetSize:
			flush()
			current = []string{para}
			size = paraLen
		default:
			current = append(current, para)
			size += paraLen
		}
	}
	flush()

	return chunks
}
