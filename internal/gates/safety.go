package gates

import (
	"context"
	"strings"
)

// SafetyGate blocks candidate text containing terms that have no place in
// learner-facing material. The list is a coarse first line; review handles
// the judgment calls.
type SafetyGate struct {
	blocked []string
}

// NewSafetyGate constructs the safety gate with the built-in blocklist.
func NewSafetyGate() *SafetyGate {
	return &SafetyGate{blocked: defaultBlocklist}
}

var defaultBlocklist = []string{
	"kill yourself",
	"matate",
	"suicidio",
	"nazi",
	"heroína",
	"cocaína",
	"porn",
}

func (g *SafetyGate) Name() string { return "safety" }
func (g *SafetyGate) Tier() int    { return 2 }

func (g *SafetyGate) Check(_ context.Context, input Input) Result {
	lowered := strings.ToLower(input.Text)
	for _, term := range g.blocked {
		if strings.Contains(lowered, term) {
			return Fail("blocked term: "+term, 0)
		}
	}
	return Pass(1.0)
}
