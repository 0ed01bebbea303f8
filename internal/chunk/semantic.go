package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Heading patterns recognized by the semantic strategy and the auto-selector.
var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	numberedHeading = regexp.MustCompile(`^(\d+\.\d*)\s+(.+)$`)
	chapterHeading  = regexp.MustCompile(`^(?i)chapter\s+(\d+)\s*[:.]?\s*(.*)$`)
	cjkHeading      = regexp.MustCompile(`^第([一二三四五六七八九十百千万\d]+)[章节篇]\s*[:：]?\s*(.+)$`)
)

// section is a heading plus the body text up to the next heading.
type section struct {
	title   string
	level   int
	content string
}

// splitSemantic preserves document structure: each section becomes a passage
// prefixed with its heading, and oversized sections are split by paragraph
// with the heading repeated on every piece. Text without recognizable
// structure falls through to the Paragraph strategy.
func splitSemantic(text string, targetSize int) []string {
	sections := extractSections(text)
	if len(sections) == 0 {
		return splitParagraph(text, targetSize)
	}

	var chunks []string
	for _, sec := range sections {
		prefix := strings.Repeat("#", sec.level) + " "

		if utf8.RuneCountInString(sec.content) <= targetSize {
			chunks = append(chunks, prefix+sec.title+"\n\n"+sec.content)
			continue
		}

		// Leave room for the repeated heading prefix on each piece.
		budget := targetSize - utf8.RuneCountInString(prefix+sec.title) - 10
		if budget < 1 {
			budget = targetSize
		}
		pieces := splitParagraph(sec.content, budget)
		for i, piece := range pieces {
			title := sec.title
			if len(pieces) > 1 {
				title = fmt.Sprintf("%s (part %d/%d)", sec.title, i+1, len(pieces))
			}
			chunks = append(chunks, prefix+title+"\n\n"+piece)
		}
	}

	return chunks
}

// extractSections builds a flat section list from heading lines. Body lines
// before the first heading are ignored, matching the original behavior of
// treating preamble as part of the document title.
func extractSections(text string) []section {
	var (
		sections []section
		current  *section
		body     []string
	)
	closeCurrent := func() {
		if current != nil {
			current.content = strings.TrimSpace(strings.Join(body, "\n"))
			sections = append(sections, *current)
			body = nil
		}
	}

	for line := range strings.Lines(text) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if current != nil {
				body = append(body, "")
			}
			continue
		}

		if title, level, ok := matchHeading(trimmed); ok {
			closeCurrent()
			current = &section{title: title, level: level}
			continue
		}

		if current != nil {
			body = append(body, trimmed)
		}
	}
	closeCurrent()

	return sections
}

// matchHeading reports whether the line is a heading, returning its title and
// nesting level.
func matchHeading(line string) (title string, level int, ok bool) {
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[2]), len(m[1]), true
	}
	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		// Depth of the numbering ("1.2.3") decides the level.
		return m[1] + " " + strings.TrimSpace(m[2]), strings.Count(m[1], ".") + 1, true
	}
	if m := chapterHeading.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(strings.TrimRight(line, " ")), 1, true
	}
	if m := cjkHeading.FindStringSubmatch(line); m != nil {
		return "第" + m[1] + "章 " + strings.TrimSpace(m[2]), 1, true
	}
	return "", 0, false
}
