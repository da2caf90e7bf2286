package deliberation

import (
	"context"
	"strings"

	"github.com/linnemanlabs/boardroom/internal/council"
)

// DefaultHistoryLimit is how many past analyses the service keeps and serves.
const DefaultHistoryLimit = 20

// Store is the persistence interface for analysis results.
type Store interface {
	// Put records a finished analysis.
	Put(ctx context.Context, result *council.AnalysisResult) error
	// List returns at most limit results, oldest first.
	List(ctx context.Context, limit int) ([]*council.AnalysisResult, error)
	// FindByDecision returns the most recent result for the same decision
	// text (see NormalizeText) argued in the same mode.
	FindByDecision(ctx context.Context, text string, mode council.Mode) (*council.AnalysisResult, bool, error)
}

// Notifier announces finished analyses (e.g. to a chat channel).
type Notifier interface {
	Send(ctx context.Context, result *council.AnalysisResult) error
}

// NormalizeText is the form decision texts are compared in when looking for
// a previous analysis.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
