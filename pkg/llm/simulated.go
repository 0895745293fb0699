package llm

import (
	"context"
	"encoding/json"
)

// Simulated is a deterministic in-process Client for development and tests.
// It answers decision prompts with a fixed JSON verdict and can be primed
// with canned responses or a forced error.
type Simulated struct {
	Response string
	Err      error
}

// NewSimulated returns a client that always produces a conservative
// MANUAL_REVIEW verdict.
func NewSimulated() *Simulated {
	verdict, _ := json.Marshal(map[string]any{
		"state":         "MANUAL_REVIEW",
		"confidence":    0.70,
		"justification": "Simulated LLM analysis: ambiguous signals, deferring to a human.",
	})
	return &Simulated{Response: string(verdict)}
}

func (s *Simulated) Complete(ctx context.Context, _ string, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}
