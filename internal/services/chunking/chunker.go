package chunking

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"lectern/internal/documents"
	"lectern/internal/logging"
)

// Service splits pages into classified chunks.
type Service struct {
	logger *slog.Logger
}

// NewService constructs the chunker.
func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{logger: logging.NewComponentLogger(logger, "chunking")}
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Chunk splits every page on blank lines and classifies each block. Chunk
// indexes are sequential across the whole document.
func (s *Service) Chunk(pages []documents.PageInput) []documents.ChunkInput {
	var chunks []documents.ChunkInput
	for _, page := range pages {
		for _, block := range paragraphBreak.Split(page.Text, -1) {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			chunkType, confidence := classify(block)
			chunks = append(chunks, documents.ChunkInput{
				Index:      len(chunks),
				PageNumber: page.Number,
				Type:       chunkType,
				Text:       block,
				Confidence: confidence,
				WordCount:  len(strings.Fields(block)),
				CharCount:  len([]rune(block)),
			})
		}
	}
	s.logger.Debug("pages chunked",
		logging.Int("pages", len(pages)),
		logging.Int("chunks", len(chunks)))
	return chunks
}

var exerciseCues = []string{
	"ejercicio", "completa", "rellena", "elige", "escoge", "traduce",
	"escribe", "conjuga", "ordena", "empareja", "corrige", "subraya",
	"exercise", "fill in", "choose", "translate", "match",
}

func classify(block string) (documents.ChunkType, float64) {
	lines := nonEmptyLines(block)
	lowered := strings.ToLower(block)

	if isHeading(block, lines) {
		confidence := 0.7
		if strings.HasPrefix(strings.TrimSpace(block), "#") {
			confidence = 0.95
		}
		return documents.ChunkHeading, confidence
	}

	if hasBlanks(block) || hasExerciseCue(lowered) {
		return documents.ChunkExercise, 0.8
	}

	if dialogueLines(lines) >= 2 {
		return documents.ChunkDialogue, 0.85
	}

	if pairLines(lines) >= 2 && pairLines(lines)*2 >= len(lines) {
		return documents.ChunkList, 0.8
	}

	return documents.ChunkParagraph, 0.6
}

func nonEmptyLines(block string) []string {
	raw := strings.Split(block, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

var numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)

func isHeading(block string, lines []string) bool {
	if len(lines) != 1 {
		return false
	}
	line := lines[0]
	if strings.HasPrefix(line, "#") {
		return true
	}
	words := strings.Fields(line)
	if len(words) == 0 || len(words) > 8 {
		return false
	}
	// Trailing punctuation marks a sentence or an instruction lead-in.
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") || strings.HasSuffix(line, ":") {
		return false
	}
	if numberedHeading.MatchString(line) {
		return true
	}
	first := []rune(words[0])
	return unicode.IsUpper(first[0]) || unicode.IsDigit(first[0])
}

func hasBlanks(block string) bool {
	return strings.Contains(block, "___") || strings.Contains(block, "....")
}

func hasExerciseCue(lowered string) bool {
	for _, cue := range exerciseCues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

var speakerLine = regexp.MustCompile(`^(—|--|-\s|[A-ZÁÉÍÓÚÑ][\wáéíóúñ]*\s*:\s+)`)

func dialogueLines(lines []string) int {
	count := 0
	for _, line := range lines {
		if speakerLine.MatchString(line) {
			count++
		}
	}
	return count
}

var pairSeparators = []string{" - ", " – ", ": ", " = ", "\t"}

// pairLines counts term/definition shaped lines, the signature of a
// vocabulary list.
func pairLines(lines []string) int {
	count := 0
	for _, line := range lines {
		line = strings.TrimLeft(line, "•*- \t")
		for _, sep := range pairSeparators {
			if idx := strings.Index(line, sep); idx > 0 {
				left := strings.Fields(line[:idx])
				if len(left) > 0 && len(left) <= 4 {
					count++
				}
				break
			}
		}
	}
	return count
}
