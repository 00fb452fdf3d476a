// Package evaluate scores a procedure transcript against its rubric using an
// LLM and validates the structured result.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"

	"surgeval-backend/internal/rubric"
)

// Evaluator scores a transcript against a rubric and returns the raw JSON
// evaluation: one object per step key plus caseDifficulty and
// additionalComments.
type Evaluator interface {
	Evaluate(ctx context.Context, transcript string, r rubric.Rubric, additionalContext string) (json.RawMessage, error)
}

// Placeholder returns a zeroed evaluation for every step. Used in dev mode
// when no LLM provider is configured.
type Placeholder struct{}

func (Placeholder) Evaluate(ctx context.Context, transcript string, r rubric.Rubric, additionalContext string) (json.RawMessage, error) {
	out := make(map[string]any, len(r.Steps)+2)
	for _, step := range r.Steps {
		out[step.Key] = map[string]any{
			"score":    0,
			"time":     "N/A",
			"comments": "Placeholder evaluation. Configure GEMINI_API_KEY for real scoring.",
		}
	}
	out["caseDifficulty"] = 0
	out["additionalComments"] = "Placeholder evaluation. Configure GEMINI_API_KEY for real scoring."
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal placeholder evaluation: %w", err)
	}
	return raw, nil
}
