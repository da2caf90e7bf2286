package history

import (
	"strings"

	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/sanitize"
)

// Search returns the entries whose decision text or final verdict contains
// query, case-insensitively. An empty query matches everything. Nil entries
// are dropped and every returned entry is a copy with agent reasoning
// sanitized; order is preserved.
func Search(entries []*council.HistoryEntry, query string) []*council.HistoryEntry {
	out := make([]*council.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if Matches(e, query) {
			out = append(out, sanitize.Result(e))
		}
	}
	return out
}

// Matches reports whether a non-nil entry satisfies query under the rules of
// Search.
func Matches(e *council.HistoryEntry, query string) bool {
	if e == nil {
		return false
	}
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(e.DecisionText), q) ||
		strings.Contains(strings.ToLower(string(e.FinalVerdict)), q)
}

// Stats summarises a history list for the archive header.
type Stats struct {
	Total             int     `json:"total_decisions"`
	ApprovalRate      float64 `json:"approval_rate"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Summarize computes Stats over the non-nil entries.
func Summarize(entries []*council.HistoryEntry) Stats {
	var s Stats
	var approved, confidence int
	for _, e := range entries {
		if e == nil {
			continue
		}
		s.Total++
		if e.FinalVerdict == council.Approve {
			approved++
		}
		confidence += e.AverageConfidence
	}
	if s.Total > 0 {
		s.ApprovalRate = float64(approved) / float64(s.Total) * 100
		s.AverageConfidence = float64(confidence) / float64(s.Total)
	}
	return s
}
