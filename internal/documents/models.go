package documents

import (
	"strings"
	"time"
)

// Status represents a document's extraction state.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

var allStatuses = []Status{StatusPending, StatusReady, StatusError}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ChunkType classifies a chunk's role in the source text.
type ChunkType string

const (
	ChunkParagraph ChunkType = "paragraph"
	ChunkHeading   ChunkType = "heading"
	ChunkList      ChunkType = "list"
	ChunkDialogue  ChunkType = "dialogue"
	ChunkExercise  ChunkType = "exercise"
)

// MappingStatus tracks the human-confirmation state of a chunk-topic mapping.
type MappingStatus string

const (
	MappingPending   MappingStatus = "pending"
	MappingConfirmed MappingStatus = "confirmed"
	MappingRejected  MappingStatus = "rejected"
)

// Document is an uploaded source text awaiting or past extraction.
type Document struct {
	ID           int64
	Title        string
	SourcePath   string
	Language     string
	TargetLevel  string
	Status       Status
	ErrorMessage string
	PageCount    int
	WordCount    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Page is one extracted page of a document.
type Page struct {
	ID         int64
	DocumentID int64
	PageNumber int
	Text       string
	WordCount  int
	CreatedAt  time.Time
}

// Chunk is one segment of extracted text, sized for mapping and
// transformation.
type Chunk struct {
	ID         int64
	DocumentID int64
	Index      int
	PageNumber int
	Type       ChunkType
	Text       string
	Confidence float64
	WordCount  int
	CharCount  int
	CreatedAt  time.Time
}

// Level is one CEFR rung for a language.
type Level struct {
	ID       int64
	Code     string
	Language string
	Name     string
	Ordinal  int
}

// Topic is a curriculum topic that mapped chunks and learning items hang off.
type Topic struct {
	ID          int64
	Name        string
	Language    string
	LevelID     *int64
	Description string
	CreatedAt   time.Time
}

// Mapping links a chunk to a topic. It sits in pending until a human
// confirms or rejects it; the orchestrator only reacts to confirmed rows.
type Mapping struct {
	ID            int64
	ChunkID       int64
	DocumentID    int64
	TopicID       int64
	Status        MappingStatus
	Confidence    float64
	Rationale     string
	CreatedAt     time.Time
	ConfirmedAt   *time.Time
	TransformedAt *time.Time
}

// PageInput carries one extracted page into SaveExtraction.
type PageInput struct {
	Number int
	Text   string
}

// ChunkInput carries one chunk into SaveExtraction.
type ChunkInput struct {
	Index      int
	PageNumber int
	Type       ChunkType
	Text       string
	Confidence float64
	WordCount  int
	CharCount  int
}

// ParseStatus converts a string into a known document Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsConfirmed reports whether the mapping has human approval.
func (m Mapping) IsConfirmed() bool {
	return m.Status == MappingConfirmed
}

// NeedsTransform reports whether the mapping is confirmed but has not yet
// produced drafts.
func (m Mapping) NeedsTransform() bool {
	return m.Status == MappingConfirmed && m.TransformedAt == nil
}
