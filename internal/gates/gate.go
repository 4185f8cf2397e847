package gates

import (
	"context"
)

// Input carries a candidate's text and metadata into a gate check.
type Input struct {
	Text        string
	Language    string
	ContentType string
	Level       string
	TopicID     int64
	Metadata    map[string]string
}

// Result is one gate's verdict.
type Result struct {
	Passed bool
	Reason string
	Score  float64
}

// Gate is one pass/fail check in the promotion sequence.
type Gate interface {
	Name() string
	Tier() int
	Check(ctx context.Context, input Input) Result
}

// Pass constructs a passing result with a confidence score.
func Pass(score float64) Result {
	return Result{Passed: true, Score: score}
}

// Fail constructs a failing result with a reason and score.
func Fail(reason string, score float64) Result {
	return Result{Passed: false, Reason: reason, Score: score}
}

// OrderedByTier reports whether a gate list is sorted by tier. The promotion
// engine treats the list as an opaque ordered sequence; this helper lets
// wiring code assert its own ordering.
func OrderedByTier(gateList []Gate) bool {
	for i := 1; i < len(gateList); i++ {
		if gateList[i].Tier() < gateList[i-1].Tier() {
			return false
		}
	}
	return true
}
