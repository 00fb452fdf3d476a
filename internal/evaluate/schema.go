package evaluate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"surgeval-backend/internal/rubric"
)

// BuildResponseSchema builds the Gemini generationConfig responseSchema for a
// rubric: one object per step key with score/time/comments, plus the overall
// caseDifficulty and additionalComments fields.
func BuildResponseSchema(r rubric.Rubric) map[string]any {
	properties := make(map[string]any, len(r.Steps)+2)
	for _, step := range r.Steps {
		properties[step.Key] = map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"score":    map[string]any{"type": "NUMBER"},
				"time":     map[string]any{"type": "STRING"},
				"comments": map[string]any{"type": "STRING"},
			},
		}
	}
	properties["caseDifficulty"] = map[string]any{"type": "NUMBER"}
	properties["additionalComments"] = map[string]any{"type": "STRING"}
	return map[string]any{
		"type":       "OBJECT",
		"properties": properties,
	}
}

// validationSchema is the JSON Schema used to check evaluator output before
// it is stored. Stricter than the response schema sent to the model: every
// step key is required and scores are bounded.
func validationSchema(r rubric.Rubric) map[string]any {
	stepSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":    map[string]any{"type": "integer", "minimum": 0, "maximum": 5},
			"time":     map[string]any{"type": "string"},
			"comments": map[string]any{"type": "string"},
		},
		"required": []any{"score", "time", "comments"},
	}

	properties := make(map[string]any, len(r.Steps)+2)
	required := make([]any, 0, len(r.Steps)+2)
	for _, step := range r.Steps {
		properties[step.Key] = stepSchema
		required = append(required, step.Key)
	}
	properties["caseDifficulty"] = map[string]any{"type": "integer", "minimum": 0, "maximum": 3}
	properties["additionalComments"] = map[string]any{"type": "string"}
	required = append(required, "caseDifficulty", "additionalComments")

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ValidateResult checks raw evaluator output against the rubric: all step
// keys present with integer scores 0-5, caseDifficulty 0-3.
func ValidateResult(r rubric.Rubric, raw json.RawMessage) error {
	schemaMap := validationSchema(r)
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("evaluation.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("evaluation.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid evaluation result: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid evaluation result: %w", err)
	}
	return nil
}
