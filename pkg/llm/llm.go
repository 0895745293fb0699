// Package llm defines the completion port used by the decision fallback and
// the hypothesis agent, with HTTP provider implementations.
package llm

import (
	"context"
	"errors"
)

// Options tune a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultOptions returns the settings used for decision-support prompts.
func DefaultOptions() Options {
	return Options{Temperature: 0.2, MaxTokens: 1024}
}

// Client completes a prompt into text. Implementations must honor the
// context deadline and return the raw model output without post-processing.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

var (
	// ErrMissingCredentials indicates the provider has no API token configured.
	ErrMissingCredentials = errors.New("llm: missing credentials")
	// ErrEmptyCompletion indicates the provider answered with no content.
	ErrEmptyCompletion = errors.New("llm: empty completion")
	// ErrUnavailable indicates the provider is unreachable or tripped open.
	ErrUnavailable = errors.New("llm: provider unavailable")
)
