package lifecycle

import (
	"encoding/json"
	"fmt"
	"strings"

	"lectern/internal/textutil"
)

// DataType identifies what kind of learning item a payload describes.
type DataType string

const (
	TypeMeaning   DataType = "meaning"
	TypeRule      DataType = "rule"
	TypeUtterance DataType = "utterance"
	TypeExercise  DataType = "exercise"
)

var allDataTypes = []DataType{TypeMeaning, TypeRule, TypeUtterance, TypeExercise}

var dataTypeSet = func() map[DataType]struct{} {
	set := make(map[DataType]struct{}, len(allDataTypes))
	for _, dt := range allDataTypes {
		set[dt] = struct{}{}
	}
	return set
}()

// ParseDataType converts a string into a known DataType.
func ParseDataType(value string) (DataType, bool) {
	normalized := DataType(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := dataTypeSet[normalized]
	return normalized, ok
}

// ReviewPriority maps a data type to its review queue priority. Lower is
// reviewed sooner.
func ReviewPriority(dt DataType) int {
	switch dt {
	case TypeRule:
		return 1
	case TypeMeaning:
		return 2
	case TypeUtterance:
		return 3
	case TypeExercise:
		return 4
	default:
		return 10
	}
}

// Payload is the type-specific content carried through the lifecycle chain.
// DedupKey returns the normalized natural key used to recognize the same
// content across stages; PrimaryText returns the text quality gates inspect.
type Payload interface {
	Type() DataType
	DedupKey() string
	PrimaryText() string
}

// MeaningPayload is a vocabulary item.
type MeaningPayload struct {
	Word         string `json:"word"`
	Translation  string `json:"translation"`
	PartOfSpeech string `json:"part_of_speech,omitempty"`
	Example      string `json:"example,omitempty"`
}

func (p MeaningPayload) Type() DataType      { return TypeMeaning }
func (p MeaningPayload) DedupKey() string    { return textutil.NormalizeKey(p.Word) }
func (p MeaningPayload) PrimaryText() string { return p.Word }

// RulePayload is a grammar rule.
type RulePayload struct {
	Title       string   `json:"title"`
	Explanation string   `json:"explanation"`
	Examples    []string `json:"examples,omitempty"`
}

func (p RulePayload) Type() DataType   { return TypeRule }
func (p RulePayload) DedupKey() string { return textutil.NormalizeKey(p.Title) }

func (p RulePayload) PrimaryText() string {
	if p.Explanation == "" {
		return p.Title
	}
	return p.Title + ": " + p.Explanation
}

// UtterancePayload is an example sentence or phrase.
type UtterancePayload struct {
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
}

func (p UtterancePayload) Type() DataType      { return TypeUtterance }
func (p UtterancePayload) DedupKey() string    { return textutil.NormalizeKey(p.Text) }
func (p UtterancePayload) PrimaryText() string { return p.Text }

// ExercisePayload is a practice prompt with its expected answer.
type ExercisePayload struct {
	Prompt  string   `json:"prompt"`
	Answer  string   `json:"answer"`
	Options []string `json:"options,omitempty"`
}

func (p ExercisePayload) Type() DataType      { return TypeExercise }
func (p ExercisePayload) DedupKey() string    { return textutil.NormalizeKey(p.Prompt) }
func (p ExercisePayload) PrimaryText() string { return p.Prompt }

// EncodePayload renders a payload for storage.
func EncodePayload(p Payload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("payload is nil")
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", p.Type(), err)
	}
	return string(encoded), nil
}

// DecodePayload parses a stored payload back into its typed form.
func DecodePayload(dt DataType, raw string) (Payload, error) {
	switch dt {
	case TypeMeaning:
		var p MeaningPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode meaning payload: %w", err)
		}
		return p, nil
	case TypeRule:
		var p RulePayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode rule payload: %w", err)
		}
		return p, nil
	case TypeUtterance:
		var p UtterancePayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode utterance payload: %w", err)
		}
		return p, nil
	case TypeExercise:
		var p ExercisePayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode exercise payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown data type %q", dt)
	}
}
