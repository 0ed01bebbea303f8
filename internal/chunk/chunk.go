// Package chunk splits raw document text into ordered passages for embedding
// and retrieval.
//
// Four strategies are available behind a closed Strategy enum:
//   - StrategySimple: fixed-size windows that prefer sentence boundaries
//   - StrategyParagraph: greedy packing of blank-line separated paragraphs
//   - StrategySemantic: heading-aware splitting that preserves section titles
//   - StrategyModel: model-assisted boundary selection with Paragraph fallback
//
// SelectStrategy inspects text features (heading density, paragraph density,
// length) and picks a strategy automatically; callers that know their corpus
// can force one.
//
// All sizes and ratios are measured in runes so mixed-script text behaves the
// same as ASCII. Splitting never fails: text shorter than the target size
// comes back as a single passage, and internal model errors degrade to the
// Paragraph strategy.
package chunk

import (
	"context"
	"fmt"
	"strings"
)

// Strategy identifies a chunking algorithm.
type Strategy int

const (
	// StrategySimple cuts fixed-size windows at sentence boundaries.
	StrategySimple Strategy = iota

	// StrategyParagraph packs whole paragraphs into windows.
	StrategyParagraph

	// StrategySemantic follows document structure (headings, sections).
	StrategySemantic

	// StrategyModel asks a boundary scorer to pick break positions.
	StrategyModel
)

// String returns the wire name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategySimple:
		return "simple"
	case StrategyParagraph:
		return "paragraph"
	case StrategySemantic:
		return "semantic"
	case StrategyModel:
		return "model"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a wire name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "simple":
		return StrategySimple, nil
	case "paragraph":
		return StrategyParagraph, nil
	case "semantic":
		return StrategySemantic, nil
	case "model":
		return StrategyModel, nil
	default:
		return StrategySimple, fmt.Errorf("unknown chunking strategy %q", name)
	}
}

// Default ratios, expressed relative to the target chunk size so behavior
// scales when callers change the size.
const (
	DefaultOverlapRatio  = 0.1
	DefaultLookbackRatio = 0.1
)

// BoundaryScorer rates how semantically complete a candidate passage is.
// Higher is better. Implemented by local text-understanding models; the
// chunker only needs this one method.
type BoundaryScorer interface {
	ScoreSegment(ctx context.Context, segment string) (float64, error)
}

// Options tunes the splitting algorithms. The zero value is usable: ratios
// default to DefaultOverlapRatio/DefaultLookbackRatio and no scorer means
// StrategyModel degrades to StrategyParagraph.
type Options struct {
	// OverlapRatio is the fraction of the target size shared between
	// adjacent windows (Simple strategy).
	OverlapRatio float64

	// LookbackRatio bounds how far the Simple strategy scans backward for a
	// sentence boundary before hard-cutting.
	LookbackRatio float64

	// Scorer enables the model-assisted strategy.
	Scorer BoundaryScorer
}

func (o Options) overlapRatio() float64 {
	if o.OverlapRatio <= 0 {
		return DefaultOverlapRatio
	}
	return o.OverlapRatio
}

func (o Options) lookbackRatio() float64 {
	if o.LookbackRatio <= 0 {
		return DefaultLookbackRatio
	}
	return o.LookbackRatio
}

// Split divides text into ordered passages of roughly targetSize runes using
// the given strategy. Empty text yields no passages; text shorter than
// targetSize yields exactly one.
func Split(ctx context.Context, text string, targetSize int, strategy Strategy, opts Options) []string {
	if text == "" || targetSize <= 0 {
		return nil
	}

	switch strategy {
	case StrategyParagraph:
		return splitParagraph(text, targetSize)
	case StrategySemantic:
		return splitSemantic(text, targetSize)
	case StrategyModel:
		return splitModel(ctx, text, targetSize, opts.Scorer)
	default:
		return splitSimple(text, targetSize, opts.overlapRatio(), opts.lookbackRatio())
	}
}
