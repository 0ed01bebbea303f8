package chunk

import "strings"

// Auto-selection thresholds. Structure detection only looks at the head of
// the document so selection stays cheap for large inputs.
const (
	headingScanLines   = 100
	headingMinCount    = 3
	semanticMinLen     = 5000
	paragraphScanBytes = 10 * 1024
	paragraphMinCount  = 5
	modelStructuredLen = 10000
	modelAlwaysLen     = 50000
)

// SelectStrategy picks a chunking strategy from text shape. Structured long
// documents get Semantic, paragraph-dense prose gets Paragraph, and anything
// else gets Simple. The model-assisted strategy is only chosen when a scorer
// is available and the document is large enough to repay the extra calls.
func SelectStrategy(text string, opts Options) Strategy {
	length := runeLen(text)
	structured := headingCount(text) >= headingMinCount

	if opts.Scorer != nil {
		if (structured && length > modelStructuredLen) || length > modelAlwaysLen {
			return StrategyModel
		}
	}

	if structured && length > semanticMinLen {
		return StrategySemantic
	}

	head := text
	if len(head) > paragraphScanBytes {
		head = head[:paragraphScanBytes]
	}
	if len(splitParagraphs(head)) > paragraphMinCount {
		return StrategyParagraph
	}

	return StrategySimple
}

// headingCount counts heading lines within the first headingScanLines lines.
func headingCount(text string) int {
	count := 0
	seen := 0
	for line := range strings.Lines(text) {
		if seen++; seen > headingScanLines {
			break
		}
		if _, _, ok := matchHeading(strings.TrimSpace(line)); ok {
			count++
		}
	}
	return count
}
