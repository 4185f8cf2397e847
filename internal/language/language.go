package language

import (
	"strings"

	"golang.org/x/text/cases"
	xlanguage "golang.org/x/text/language"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "spanish")
}

var languages = []entry{
	{"es", "spa", "Spanish", []string{"spanish", "español"}},
	{"en", "eng", "English", []string{"english"}},
	{"fr", "fra", "French", []string{"french", "français"}},
	{"de", "deu", "German", []string{"german", "deutsch"}},
	{"it", "ita", "Italian", []string{"italian", "italiano"}},
	{"pt", "por", "Portuguese", []string{"portuguese", "português"}},
	{"nl", "nld", "Dutch", []string{"dutch"}},
	{"pl", "pol", "Polish", []string{"polish"}},
	{"sv", "swe", "Swedish", []string{"swedish"}},
	{"ru", "rus", "Russian", []string{"russian"}},
	{"ja", "jpn", "Japanese", []string{"japanese"}},
	{"ko", "kor", "Korean", []string{"korean"}},
	{"zh", "zho", "Chinese", []string{"chinese"}},
	{"ar", "ara", "Arabic", []string{"arabic"}},
}

var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages))
	byWord = make(map[string]*entry, len(languages)*2)
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// Canonical converts any recognized language code or word to ISO 639-1.
// Unrecognized 2-letter inputs pass through; everything else returns "".
func Canonical(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// Supported reports whether the code resolves to a language in the catalog.
func Supported(code string) bool {
	return lookup(code) != nil
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input, or a title-cased form of the raw input
// for unrecognized codes.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	if e := lookup(trimmed); e != nil {
		return e.display
	}
	return cases.Title(xlanguage.Und).String(strings.ToLower(trimmed))
}

// All returns the ISO 639-1 codes of every supported language.
func All() []string {
	codes := make([]string, 0, len(languages))
	for i := range languages {
		codes = append(codes, languages[i].code2)
	}
	return codes
}
