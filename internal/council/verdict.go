package council

// Verdict is an agent's or the council's position on a decision. Values outside
// the three known verdicts are kept verbatim and styled as Conditional.
type Verdict string

const (
	Approve     Verdict = "Approve"
	Reject      Verdict = "Reject"
	Conditional Verdict = "Conditional"
)

// Known reports whether v is one of Approve, Reject or Conditional.
func (v Verdict) Known() bool {
	switch v {
	case Approve, Reject, Conditional:
		return true
	default:
		return false
	}
}

// VerdictStyle is the presentation descriptor for a verdict.
type VerdictStyle struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Title string `json:"title"`
}

// Style maps a verdict to its icon, colour and headline.
func (v Verdict) Style() VerdictStyle {
	switch v {
	case Approve:
		return VerdictStyle{Icon: "check-circle", Color: "emerald", Title: "Approved by Consensus"}
	case Reject:
		return VerdictStyle{Icon: "x-circle", Color: "rose", Title: "Rejected by Consensus"}
	default:
		return VerdictStyle{Icon: "alert-circle", Color: "amber", Title: "Approved with Conditions"}
	}
}
