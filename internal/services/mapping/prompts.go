package mapping

import (
	"fmt"
	"sort"
	"strings"
)

// topicAssignmentPrompt captures the instructions for assigning chunks to
// curriculum topics. Keep changes centralized here so call sites stay
// stable.
const topicAssignmentPrompt = `You are an assistant that organizes language textbook content into curriculum topics.

You receive numbered text chunks from one document plus the catalog of existing topics for the target language and level. Assign each chunk the single best topic.

Rules:

- Prefer a topic from the catalog when one fits.
- Propose a new topic name only when nothing in the catalog fits; keep names short (2-4 words) in the document's language.
- Confidence is 0 to 1. Use low confidence when the chunk is ambiguous or administrative (covers, page numbers, credits).
- Skip nothing: every chunk listed in the input gets exactly one assignment.

You must respond ONLY with a JSON object like:
{"assignments": [{"chunk_index": 0, "topic": "Saludos y presentaciones", "confidence": 0.9, "rationale": "short explanation"}]}`

const digestRunes = 240

func buildUserPrompt(language, levelCode string, catalog []string, digests map[int]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nTarget level: %s\n\n", language, levelCode)

	if len(catalog) == 0 {
		b.WriteString("Topic catalog: (empty, propose new topics)\n")
	} else {
		b.WriteString("Topic catalog:\n")
		for _, name := range catalog {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}

	b.WriteString("\nChunks:\n")
	indexes := sortedKeys(digests)
	for _, idx := range indexes {
		fmt.Fprintf(&b, "[%d] %s\n", idx, digests[idx])
	}
	return b.String()
}

func sortedKeys(digests map[int]string) []int {
	keys := make([]int, 0, len(digests))
	for k := range digests {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// digest collapses a chunk's text into a single prompt line.
func digest(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) > digestRunes {
		return string(runes[:digestRunes]) + "..."
	}
	return collapsed
}
