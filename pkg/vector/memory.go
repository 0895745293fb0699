package vector

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// MemoryStore is an in-process Store backed by token-set similarity.
// Scoring is Jaccard over lowercase word tokens, which is deterministic
// and good enough for recovering near-duplicate incident summaries.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add indexes a document. Duplicate decision ids replace the prior entry.
func (s *MemoryStore) Add(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d.DecisionID == doc.DecisionID {
			s.docs[i] = doc
			return nil
		}
	}
	s.docs = append(s.docs, doc)
	return nil
}

// Search returns up to limit matches ordered by descending score, ties
// broken by decision id for stable output.
func (s *MemoryStore) Search(_ context.Context, query string, limit int) ([]Match, error) {
	q := tokenize(query)
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.docs))
	for _, d := range s.docs {
		score := jaccard(q, tokenize(d.Summary))
		if score > 0 {
			matches = append(matches, Match{DecisionID: d.DecisionID, Score: score, Summary: d.Summary})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].DecisionID < matches[j].DecisionID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[tok] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
