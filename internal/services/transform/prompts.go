package transform

import (
	"fmt"
	"strings"

	"lectern/internal/lifecycle"
)

// Per-type transformation instructions. Each prompt pins the exact JSON
// shape its schema in schemas.go expects; keep the two in sync.

const meaningPrompt = `You are an assistant that extracts vocabulary from language textbook excerpts.

Extract the vocabulary items taught in the excerpt. For each item give the word or phrase in the target language, its English translation, and optionally the part of speech and one example sentence from the excerpt.

Rules:

- Only include vocabulary the excerpt actually teaches. Do not invent words.
- One entry per word or fixed phrase. Skip duplicates.
- Keep translations short and literal.

You must respond ONLY with a JSON object like:
{"items": [{"word": "el perro", "translation": "the dog", "part_of_speech": "noun", "example": "El perro es grande."}]}`

const rulePrompt = `You are an assistant that extracts grammar rules from language textbook excerpts.

Extract the grammar points the excerpt explains. For each give a short title, a learner-friendly explanation in English, and up to three example sentences taken from the excerpt.

Rules:

- Only include rules the excerpt actually explains. Do not invent grammar.
- Titles are short noun phrases, for example "Present tense of ser".
- Explanations are two to four plain sentences aimed at the excerpt's level.

You must respond ONLY with a JSON object like:
{"items": [{"title": "Present tense of ser", "explanation": "...", "examples": ["Yo soy Ana."]}]}`

const utterancePrompt = `You are an assistant that collects useful sentences from language textbook excerpts.

Extract complete, natural sentences or conversational turns a learner should practice, with an English translation for each.

Rules:

- Use sentences from the excerpt verbatim where possible; minor cleanup of broken line wraps is fine.
- Skip fragments, headings, and instructions to the student.
- Keep each sentence self-contained.

You must respond ONLY with a JSON object like:
{"items": [{"text": "Hola, me llamo Ana.", "translation": "Hi, my name is Ana."}]}`

const exercisePrompt = `You are an assistant that converts textbook exercises into self-contained practice items.

Turn the exercise material in the excerpt into individual practice items. Each item needs a prompt the learner answers, the expected answer, and optionally multiple-choice options.

Rules:

- Fill-in-the-blank items keep the blank marked with ___ in the prompt.
- The answer must be unambiguous; skip sub-exercises whose answer is not determined by the excerpt.
- When the source exercise offers choices, carry them into options.

You must respond ONLY with a JSON object like:
{"items": [{"prompt": "Yo ___ de Madrid.", "answer": "soy", "options": ["soy", "eres", "es"]}]}`

func promptFor(dt lifecycle.DataType) (string, error) {
	switch dt {
	case lifecycle.TypeMeaning:
		return meaningPrompt, nil
	case lifecycle.TypeRule:
		return rulePrompt, nil
	case lifecycle.TypeUtterance:
		return utterancePrompt, nil
	case lifecycle.TypeExercise:
		return exercisePrompt, nil
	default:
		return "", fmt.Errorf("no transformation prompt for data type %q", dt)
	}
}

func buildUserPrompt(language, levelCode, topicName string, maxItems int, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nTarget level: %s\nTopic: %s\nProduce at most %d items.\n\nExcerpt:\n%s\n",
		language, levelCode, topicName, maxItems, strings.TrimSpace(text))
	return b.String()
}
