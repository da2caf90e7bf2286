// Package memstore provides an in-memory implementation of deliberation.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/deliberation"
)

// Store keeps the most recent analyses in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	results  []*council.AnalysisResult // oldest first
	capacity int
}

// New initializes an in-memory Store that retains at most capacity results.
// A non-positive capacity uses deliberation.DefaultHistoryLimit.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = deliberation.DefaultHistoryLimit
	}
	return &Store{capacity: capacity}
}

// Put stores a copy of the result, dropping the oldest beyond capacity.
func (s *Store) Put(_ context.Context, r *council.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r.Clone())
	if over := len(s.results) - s.capacity; over > 0 {
		clear(s.results[:over])
		s.results = s.results[over:]
	}
	return nil
}

// List returns copies of the newest limit results, oldest first.
func (s *Store) List(_ context.Context, limit int) ([]*council.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.results
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]*council.AnalysisResult, len(src))
	for i, r := range src {
		out[i] = r.Clone()
	}
	return out, nil
}

// FindByDecision returns a copy of the newest result for the decision.
func (s *Store) FindByDecision(_ context.Context, text string, mode council.Mode) (*council.AnalysisResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := deliberation.NormalizeText(text)
	for i := len(s.results) - 1; i >= 0; i-- {
		r := s.results[i]
		if r.Mode == mode && deliberation.NormalizeText(r.DecisionText) == want {
			return r.Clone(), true, nil
		}
	}
	return nil, false, nil
}
