// Package vector defines the similarity-search port used for semantic
// recovery of past decisions, plus an in-memory implementation.
package vector

import "context"

// Document is a past decision indexed for similarity search.
type Document struct {
	DecisionID string
	Summary    string
	Metadata   map[string]string
}

// Match is a search hit with a similarity score in [0,1].
type Match struct {
	DecisionID string
	Score      float64
	Summary    string
}

// Store indexes decision summaries and retrieves the most similar ones.
type Store interface {
	Add(ctx context.Context, doc Document) error
	Search(ctx context.Context, query string, limit int) ([]Match, error)
}
