package consensus

import (
	"fmt"

	"github.com/linnemanlabs/boardroom/internal/council"
)

// Agreement levels reported in the council explanation.
const (
	AgreementHigh     = "High"
	AgreementModerate = "Moderate"
	AgreementLow      = "Low (Deeply Contested)"
)

// Decision is the council-level outcome computed from individual verdicts.
type Decision struct {
	Verdict           council.Verdict
	AverageConfidence int
	Agreement         string
	Approvals         int
	Rejections        int
	Conditionals      int
	Explanation       string
}

// Decide applies strict-majority voting: a verdict wins only when it has more
// votes than each of the other two, otherwise the council is Conditional.
// Unrecognised verdicts count toward no bucket.
func Decide(analyses []council.AgentAnalysis) Decision {
	var d Decision
	var sum int
	for _, a := range analyses {
		switch a.Verdict {
		case council.Approve:
			d.Approvals++
		case council.Reject:
			d.Rejections++
		case council.Conditional:
			d.Conditionals++
		}
		sum += a.Confidence
	}

	switch {
	case d.Approvals > d.Rejections && d.Approvals > d.Conditionals:
		d.Verdict = council.Approve
	case d.Rejections > d.Approvals && d.Rejections > d.Conditionals:
		d.Verdict = council.Reject
	default:
		d.Verdict = council.Conditional
	}

	if len(analyses) > 0 {
		d.AverageConfidence = sum / len(analyses)
	}

	largest := max(d.Approvals, d.Rejections, d.Conditionals)
	switch {
	case largest >= 4:
		d.Agreement = AgreementHigh
	case largest <= 2:
		d.Agreement = AgreementLow
	default:
		d.Agreement = AgreementModerate
	}

	d.Explanation = fmt.Sprintf("Board consensus is %s with %s agreement. Approvals: %d, Rejections: %d, Conditionals: %d.",
		d.Verdict, d.Agreement, d.Approvals, d.Rejections, d.Conditionals)

	return d
}
