// Package gates defines the quality gate contract and the built-in gates a
// candidate must clear before validation.
//
// Gates run in a fixed, caller-supplied order grouped by tier; the promotion
// engine stops at the first failure. Gate bodies here are deliberately
// shallow heuristics: they decide pass/fail with a reason and score, and the
// engine persists the failures for human diagnosis.
package gates
