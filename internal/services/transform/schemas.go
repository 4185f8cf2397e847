package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lectern/internal/lifecycle"
)

// Per-type reply schemas. Required fields mirror the payload structs in
// the lifecycle package; extra model-invented fields are tolerated and
// dropped during decoding.

const meaningSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["word", "translation"],
        "properties": {
          "word": {"type": "string", "minLength": 1},
          "translation": {"type": "string", "minLength": 1},
          "part_of_speech": {"type": "string"},
          "example": {"type": "string"}
        }
      }
    }
  }
}`

const ruleSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "explanation"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "explanation": {"type": "string", "minLength": 1},
          "examples": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

const utteranceSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text"],
        "properties": {
          "text": {"type": "string", "minLength": 1},
          "translation": {"type": "string"}
        }
      }
    }
  }
}`

const exerciseSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["prompt", "answer"],
        "properties": {
          "prompt": {"type": "string", "minLength": 1},
          "answer": {"type": "string", "minLength": 1},
          "options": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

func schemaFor(dt lifecycle.DataType) (string, error) {
	switch dt {
	case lifecycle.TypeMeaning:
		return meaningSchema, nil
	case lifecycle.TypeRule:
		return ruleSchema, nil
	case lifecycle.TypeUtterance:
		return utteranceSchema, nil
	case lifecycle.TypeExercise:
		return exerciseSchema, nil
	default:
		return "", fmt.Errorf("no reply schema for data type %q", dt)
	}
}

// validateReply checks a parsed model reply against the data type's schema.
func validateReply(dt lifecycle.DataType, raw json.RawMessage) error {
	source, err := schemaFor(dt)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("reply.json", strings.NewReader(source)); err != nil {
		return fmt.Errorf("load %s reply schema: %w", dt, err)
	}
	schema, err := compiler.Compile("reply.json")
	if err != nil {
		return fmt.Errorf("compile %s reply schema: %w", dt, err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode reply for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("reply does not match %s schema: %w", dt, err)
	}
	return nil
}

// decodeItems turns a validated reply into typed payloads. Items whose
// dedup key normalizes to nothing are dropped.
func decodeItems(dt lifecycle.DataType, raw json.RawMessage) ([]lifecycle.Payload, error) {
	switch dt {
	case lifecycle.TypeMeaning:
		var reply struct {
			Items []lifecycle.MeaningPayload `json:"items"`
		}
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("decode meaning items: %w", err)
		}
		payloads := make([]lifecycle.Payload, 0, len(reply.Items))
		for _, item := range reply.Items {
			payloads = append(payloads, item)
		}
		return filterEmpty(payloads), nil
	case lifecycle.TypeRule:
		var reply struct {
			Items []lifecycle.RulePayload `json:"items"`
		}
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("decode rule items: %w", err)
		}
		payloads := make([]lifecycle.Payload, 0, len(reply.Items))
		for _, item := range reply.Items {
			payloads = append(payloads, item)
		}
		return filterEmpty(payloads), nil
	case lifecycle.TypeUtterance:
		var reply struct {
			Items []lifecycle.UtterancePayload `json:"items"`
		}
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("decode utterance items: %w", err)
		}
		payloads := make([]lifecycle.Payload, 0, len(reply.Items))
		for _, item := range reply.Items {
			payloads = append(payloads, item)
		}
		return filterEmpty(payloads), nil
	case lifecycle.TypeExercise:
		var reply struct {
			Items []lifecycle.ExercisePayload `json:"items"`
		}
		if err := json.Unmarshal(raw, &reply); err != nil {
			return nil, fmt.Errorf("decode exercise items: %w", err)
		}
		payloads := make([]lifecycle.Payload, 0, len(reply.Items))
		for _, item := range reply.Items {
			payloads = append(payloads, item)
		}
		return filterEmpty(payloads), nil
	default:
		return nil, fmt.Errorf("unknown data type %q", dt)
	}
}

func filterEmpty(payloads []lifecycle.Payload) []lifecycle.Payload {
	kept := payloads[:0]
	for _, p := range payloads {
		if p.DedupKey() == "" {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
