// Package consensus derives consensus metrics from a set of agent verdicts:
// Tally for the console summary bar, Decide for the council's final verdict.
package consensus

import "github.com/linnemanlabs/boardroom/internal/council"

// DefaultCouncilSize stands in for the agent count when a result carries no
// analyses, so the approval ratio has a denominator.
const DefaultCouncilSize = 5

// Summary is the approve versus reject/conditional split of a council.
type Summary struct {
	Approvals      int     `json:"approvals"`
	Rejections     int     `json:"rejections"` // every non-Approve verdict
	Total          int     `json:"total"`
	ApprovePercent float64 `json:"approve_percent"`
}

// Tally counts approvals across analyses. Conditional and unrecognised
// verdicts are grouped with rejections.
func Tally(analyses []council.AgentAnalysis) Summary {
	total := len(analyses)
	if total == 0 {
		total = DefaultCouncilSize
	}

	var approvals int
	for _, a := range analyses {
		if a.Verdict == council.Approve {
			approvals++
		}
	}

	var pct float64
	if total > 0 {
		pct = float64(approvals) / float64(total) * 100
	}

	return Summary{
		Approvals:      approvals,
		Rejections:     total - approvals,
		Total:          total,
		ApprovePercent: pct,
	}
}
