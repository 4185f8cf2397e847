package gates

import (
	"context"
	"strings"
	"unicode"
)

// OrthographyGate runs cheap surface checks on candidate text: balanced
// punctuation pairs, no control characters, no runaway repetition. It is
// intentionally shallow; deeper linguistic checks belong to review.
type OrthographyGate struct{}

// NewOrthographyGate constructs the orthography gate.
func NewOrthographyGate() *OrthographyGate {
	return &OrthographyGate{}
}

func (g *OrthographyGate) Name() string { return "orthography" }
func (g *OrthographyGate) Tier() int    { return 1 }

var punctuationPairs = []struct {
	open  rune
	close rune
	label string
}{
	{'(', ')', "parentheses"},
	{'[', ']', "brackets"},
	{'{', '}', "braces"},
	{'«', '»', "guillemets"},
	{'¿', '?', "question marks"},
	{'¡', '!', "exclamation marks"},
}

func (g *OrthographyGate) Check(_ context.Context, input Input) Result {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return Fail("empty text", 0)
	}

	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return Fail("control character in text", 0)
		}
	}

	for _, pair := range punctuationPairs {
		opens := strings.Count(text, string(pair.open))
		closes := strings.Count(text, string(pair.close))
		if opens > closes {
			return Fail("unbalanced "+pair.label, 0.5)
		}
	}

	if reason, ok := runawayRepetition(text); !ok {
		return Fail(reason, 0.3)
	}

	if isShouting(text) {
		return Fail("text is all uppercase", 0.4)
	}

	return Pass(1.0)
}

const maxRepeatedRun = 4

// runawayRepetition rejects the same rune repeated beyond any plausible
// orthography ("hooooola") and the same word repeated back to back.
func runawayRepetition(text string) (string, bool) {
	run := 0
	var prev rune
	for _, r := range text {
		if r == prev && unicode.IsLetter(r) {
			run++
			if run >= maxRepeatedRun {
				return "repeated character run", false
			}
		} else {
			run = 1
		}
		prev = r
	}

	fields := strings.Fields(strings.ToLower(text))
	for i := 1; i < len(fields); i++ {
		if len(fields[i]) > 2 && fields[i] == fields[i-1] {
			return "repeated word", false
		}
	}
	return "", true
}

func isShouting(text string) bool {
	letters, uppers := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	return letters >= 8 && uppers == letters
}
