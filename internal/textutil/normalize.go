package textutil

import (
	"strings"
	"unicode"
)

// NormalizeKey canonicalizes a dedup key: lowercased, outer punctuation and
// whitespace stripped, inner whitespace runs collapsed to single spaces.
// Two payloads that normalize to the same key are treated as the same content.
func NormalizeKey(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = strings.ToLower(value)
	value = strings.TrimFunc(value, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
	return strings.Join(strings.Fields(value), " ")
}

// Excerpt collapses whitespace runs and truncates the text to max runes,
// appending an ellipsis when anything was cut. Used for one-line previews
// of chunk and item text in status output.
func Excerpt(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if max <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= max {
		return collapsed
	}
	trimmed := strings.TrimRight(string(runes[:max]), " ")
	return trimmed + "..."
}

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)
