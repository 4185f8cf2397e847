package gates

import (
	"context"
	"fmt"
	"strings"
)

// levelBudget caps sentence length and long-word share per CEFR rung. The
// bands are deliberately generous: the gate catches items wildly out of
// band, not borderline ones.
type levelBudget struct {
	maxSentenceWords int
	maxLongWordShare float64
}

var levelBudgets = map[string]levelBudget{
	"A1": {maxSentenceWords: 12, maxLongWordShare: 0.20},
	"A2": {maxSentenceWords: 16, maxLongWordShare: 0.30},
	"B1": {maxSentenceWords: 22, maxLongWordShare: 0.40},
	"B2": {maxSentenceWords: 28, maxLongWordShare: 0.50},
	"C1": {maxSentenceWords: 36, maxLongWordShare: 0.65},
	"C2": {maxSentenceWords: 48, maxLongWordShare: 1.0},
}

const longWordRunes = 10

// LevelGate flags candidate text whose complexity is far outside the
// document's target CEFR level.
type LevelGate struct{}

// NewLevelGate constructs the level consistency gate.
func NewLevelGate() *LevelGate {
	return &LevelGate{}
}

func (g *LevelGate) Name() string { return "level_check" }
func (g *LevelGate) Tier() int    { return 1 }

func (g *LevelGate) Check(_ context.Context, input Input) Result {
	budget, ok := levelBudgets[strings.ToUpper(strings.TrimSpace(input.Level))]
	if !ok {
		// Unknown level: nothing to measure against.
		return Pass(1.0)
	}

	words := strings.Fields(input.Text)
	if len(words) == 0 {
		return Fail("empty text", 0)
	}

	longest := longestSentenceWords(input.Text)
	if longest > budget.maxSentenceWords {
		return Fail(
			fmt.Sprintf("sentence of %d words exceeds the %s budget of %d", longest, strings.ToUpper(input.Level), budget.maxSentenceWords),
			float64(budget.maxSentenceWords)/float64(longest),
		)
	}

	longWords := 0
	for _, word := range words {
		if len([]rune(word)) >= longWordRunes {
			longWords++
		}
	}
	share := float64(longWords) / float64(len(words))
	if share > budget.maxLongWordShare {
		return Fail(
			fmt.Sprintf("%.0f%% long words exceeds the %s budget", share*100, strings.ToUpper(input.Level)),
			1-share,
		)
	}

	return Pass(1 - share/2)
}

func longestSentenceWords(text string) int {
	longest := 0
	count := 0
	flush := func() {
		if count > longest {
			longest = count
		}
		count = 0
	}
	for _, field := range strings.Fields(text) {
		count++
		switch {
		case strings.HasSuffix(field, "."),
			strings.HasSuffix(field, "!"),
			strings.HasSuffix(field, "?"),
			strings.HasSuffix(field, ";"):
			flush()
		}
	}
	flush()
	return longest
}
