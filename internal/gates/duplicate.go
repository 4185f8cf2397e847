package gates

import (
	"context"
	"fmt"

	"lectern/internal/textutil"
)

// TextSource supplies previously validated texts for a topic. The lifecycle
// store satisfies this.
type TextSource interface {
	RecentValidatedTexts(ctx context.Context, topicID int64, limit int) ([]string, error)
}

const duplicateLookback = 200

// DuplicateGate rejects candidates whose text is near-identical to an item
// already validated for the same topic. Similarity is cosine distance over
// term-frequency fingerprints.
type DuplicateGate struct {
	source    TextSource
	threshold float64
}

// NewDuplicateGate constructs the duplicate gate. Threshold is the cosine
// similarity above which a candidate counts as a duplicate; values outside
// (0, 1] fall back to 0.9.
func NewDuplicateGate(source TextSource, threshold float64) *DuplicateGate {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.9
	}
	return &DuplicateGate{source: source, threshold: threshold}
}

func (g *DuplicateGate) Name() string { return "duplicate" }
func (g *DuplicateGate) Tier() int    { return 3 }

func (g *DuplicateGate) Check(ctx context.Context, input Input) Result {
	candidate := textutil.NewFingerprint(input.Text)
	if candidate == nil {
		return Fail("text produces no comparable tokens", 0)
	}

	texts, err := g.source.RecentValidatedTexts(ctx, input.TopicID, duplicateLookback)
	if err != nil {
		return Fail("duplicate lookup failed: "+err.Error(), 0)
	}

	best := 0.0
	for _, text := range texts {
		similarity := textutil.CosineSimilarity(candidate, textutil.NewFingerprint(text))
		if similarity > best {
			best = similarity
		}
		if best >= g.threshold {
			return Fail(
				fmt.Sprintf("similarity %.2f to an existing validated item exceeds %.2f", best, g.threshold),
				1-best,
			)
		}
	}
	return Pass(1 - best)
}
