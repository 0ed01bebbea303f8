package chunk

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Strategy
		wantErr bool
	}{
		{name: "simple", input: "simple", want: StrategySimple},
		{name: "paragraph", input: "paragraph", want: StrategyParagraph},
		{name: "semantic", input: "semantic", want: StrategySemantic},
		{name: "model", input: "model", want: StrategyModel},
		{name: "mixed case", input: " Semantic ", want: StrategySemantic},
		{name: "unknown", input: "recursive", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStrategy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseStrategy(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStrategy_String_RoundTrip(t *testing.T) {
	for _, s := range []Strategy{StrategySimple, StrategyParagraph, StrategySemantic, StrategyModel} {
		got, err := ParseStrategy(s.String())
		if err != nil {
			t.Fatalf("ParseStrategy(%q) error = %v", s.String(), err)
		}
		if got != s {
			t.Errorf("round trip of %v produced %v", s, got)
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	ctx := context.Background()
	if got := Split(ctx, "", 100, StrategySimple, Options{}); got != nil {
		t.Errorf("Split(empty) = %v, want nil", got)
	}
	if got := Split(ctx, "text", 0, StrategySimple, Options{}); got != nil {
		t.Errorf("Split(targetSize=0) = %v, want nil", got)
	}
}

func TestSplitSimple_ShortText(t *testing.T) {
	got := splitSimple("hello world", 100, DefaultOverlapRatio, DefaultLookbackRatio)
	if len(got) != 1 || got[0] != "hello world" {
		t.Errorf("splitSimple(short) = %v, want single unchanged passage", got)
	}
}

func TestSplitSimple_WindowBound(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 100))

	got := splitSimple(text, 50, DefaultOverlapRatio, DefaultLookbackRatio)
	if len(got) < 2 {
		t.Fatalf("splitSimple produced %d passages, want several", len(got))
	}
	for i, c := range got {
		if c == "" {
			t.Errorf("passage %d is empty", i)
		}
		if n := utf8.RuneCountInString(c); n > 50 {
			t.Errorf("passage %d has %d runes, want <= 50", i, n)
		}
	}
}

func TestSplitSimple_PrefersCommaOverSpace(t *testing.T) {
	// The comma at position 19 sits in the second half of the first window
	// [0, 30) and outranks the spaces that follow it.
	text := "aaaa bbbb cccc dddd, eeee ffff gggg hhhh iiii"

	got := splitSimple(text, 30, DefaultOverlapRatio, DefaultLookbackRatio)
	if len(got) == 0 {
		t.Fatal("splitSimple returned no passages")
	}
	if got[0] != "aaaa bbbb cccc dddd," {
		t.Errorf("first passage = %q, want cut after the comma", got[0])
	}
}

func TestSplitSimple_ForwardProgressWithLargeOverlap(t *testing.T) {
	// No boundary characters at all and an overlap equal to window-1: the
	// start must still advance by at least one rune per iteration.
	text := strings.Repeat("x", 100)

	got := splitSimple(text, 10, 0.9, DefaultLookbackRatio)
	if len(got) != 91 {
		t.Fatalf("splitSimple produced %d passages, want 91", len(got))
	}
	for i, c := range got {
		if c != strings.Repeat("x", 10) {
			t.Fatalf("passage %d = %q, want ten x runes", i, c)
		}
	}
}

func TestSplitParagraph_PacksWholeParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 200)
	p2 := strings.Repeat("b", 280)
	p3 := strings.Repeat("c", 150)
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	got := splitParagraph(text, 500)
	if len(got) != 2 {
		t.Fatalf("splitParagraph produced %d passages, want 2", len(got))
	}
	if got[0] != p1+"\n\n"+p2 {
		t.Errorf("first passage should pack paragraphs 1 and 2 together")
	}
	if got[1] != p3 {
		t.Errorf("second passage = %q, want paragraph 3 alone", got[1])
	}
}

func TestSplitParagraph_OversizedParagraph(t *testing.T) {
	text := strings.Repeat("y", 1200)

	got := splitParagraph(text, 500)
	if len(got) < 2 {
		t.Fatalf("oversized paragraph produced %d passages, want several", len(got))
	}
	// Oversized paragraphs go through the Simple strategy with a halved
	// window.
	for i, c := range got {
		if n := utf8.RuneCountInString(c); n > 250 {
			t.Errorf("passage %d has %d runes, want <= 250", i, n)
		}
	}
}

func TestSplitSemantic_SectionsBecomePassages(t *testing.T) {
	text := "# Intro\n\nShort intro body.\n\n# Usage\n\nUsage body here."

	got := splitSemantic(text, 500)
	want := []string{
		"# Intro\n\nShort intro body.",
		"# Usage\n\nUsage body here.",
	}
	if len(got) != len(want) {
		t.Fatalf("splitSemantic produced %d passages, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("passage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSemantic_OversizedSection_PartSuffix(t *testing.T) {
	body := strings.Repeat("a", 100) + "\n\n" + strings.Repeat("b", 100) + "\n\n" + strings.Repeat("c", 100)
	text := "# Guide\n\n" + body

	got := splitSemantic(text, 120)
	if len(got) != 3 {
		t.Fatalf("splitSemantic produced %d passages, want 3: %q", len(got), got)
	}
	for i, c := range got {
		if !strings.HasPrefix(c, "# Guide (part ") {
			t.Errorf("passage %d = %q, want repeated heading with part suffix", i, c)
		}
	}
	if !strings.Contains(got[2], "(part 3/3)") {
		t.Errorf("last passage = %q, want part 3/3 suffix", got[2])
	}
}

func TestSplitSemantic_NumberedAndChapterHeadings(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "numbered", line: "1.2 Configuration"},
		{name: "chapter", line: "Chapter 3: Results"},
		{name: "cjk chapter", line: "第三章 结果分析"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, ok := matchHeading(tt.line); !ok {
				t.Errorf("matchHeading(%q) = false, want heading", tt.line)
			}
		})
	}
	if _, _, ok := matchHeading("plain prose line"); ok {
		t.Error("matchHeading matched a plain prose line")
	}
}

func TestSplitSemantic_NoStructure_FallsBackToParagraph(t *testing.T) {
	text := "first paragraph of prose.\n\nsecond paragraph of prose."

	got := splitSemantic(text, 500)
	want := splitParagraph(text, 500)
	if len(got) != len(want) {
		t.Fatalf("fallback produced %d passages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("passage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// scoreFunc adapts a function to the BoundaryScorer interface.
type scoreFunc func(ctx context.Context, segment string) (float64, error)

func (f scoreFunc) ScoreSegment(ctx context.Context, segment string) (float64, error) {
	return f(ctx, segment)
}

func TestSplitModel_NoScorer_FallsBackToParagraph(t *testing.T) {
	ctx := context.Background()
	text := "first paragraph.\n\nsecond paragraph.\n\nthird paragraph."

	got := Split(ctx, text, 500, StrategyModel, Options{})
	want := Split(ctx, text, 500, StrategyParagraph, Options{})
	if len(got) != len(want) {
		t.Fatalf("got %d passages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("passage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitModel_ScorerPicksSentenceEnds(t *testing.T) {
	ctx := context.Background()
	text := strings.Repeat("x", 40) + "." + strings.Repeat("y", 40) + "." + strings.Repeat("z", 30)

	scorer := scoreFunc(func(_ context.Context, segment string) (float64, error) {
		if strings.HasSuffix(strings.TrimSpace(segment), ".") {
			return 1.0, nil
		}
		return 0.0, nil
	})

	got := splitModel(ctx, text, 50, scorer)
	want := []string{
		strings.Repeat("x", 40) + ".",
		strings.Repeat("y", 40) + ".",
		strings.Repeat("z", 30),
	}
	if len(got) != len(want) {
		t.Fatalf("splitModel produced %d passages, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("passage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitModel_ScorerError_FallsBack(t *testing.T) {
	ctx := context.Background()
	text := strings.Repeat("x", 40) + "." + strings.Repeat("y", 40) + "." + strings.Repeat("z", 30)

	scorer := scoreFunc(func(context.Context, string) (float64, error) {
		return 0, context.DeadlineExceeded
	})

	got := splitModel(ctx, text, 50, scorer)
	want := splitParagraph(text, 50)
	if len(got) != len(want) {
		t.Fatalf("fallback produced %d passages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("passage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSelectStrategy(t *testing.T) {
	structured := "# One\n\n# Two\n\n# Three\n\n# Four\n\n" + strings.Repeat("lorem ipsum ", 1000)
	denseParas := strings.TrimSpace(strings.Repeat("a short paragraph of text.\n\n", 7))
	huge := strings.Repeat("q", 60000)

	scorer := scoreFunc(func(context.Context, string) (float64, error) { return 0.5, nil })

	tests := []struct {
		name string
		text string
		opts Options
		want Strategy
	}{
		{name: "structured long document", text: structured, want: StrategySemantic},
		{name: "structured long with scorer", text: structured, opts: Options{Scorer: scorer}, want: StrategyModel},
		{name: "paragraph dense prose", text: denseParas, want: StrategyParagraph},
		{name: "plain short text", text: "just a sentence.", want: StrategySimple},
		{name: "huge unstructured with scorer", text: huge, opts: Options{Scorer: scorer}, want: StrategyModel},
		{name: "huge unstructured without scorer", text: huge, want: StrategySimple},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectStrategy(tt.text, tt.opts); got != tt.want {
				t.Errorf("SelectStrategy() = %v, want %v", got, tt.want)
			}
		})
	}
}
