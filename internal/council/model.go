package council

// Placeholders substituted for missing fields when a result is shown or exported.
const (
	DefaultRole        = "Advisor"
	DefaultReasoning   = "No reasoning provided."
	DefaultExplanation = "No analysis available."
)

// Mode selects the prompt set the council argues from.
type Mode string

const (
	// ModeEnterprise weighs long-term ROI, compliance and scale.
	ModeEnterprise Mode = "enterprise"

	// ModeStartup weighs runway, speed and existential risk.
	ModeStartup Mode = "startup"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeEnterprise || m == ModeStartup
}

// ParseMode maps an input string to a Mode. Empty input yields ModeEnterprise.
func ParseMode(s string) (Mode, bool) {
	if s == "" {
		return ModeEnterprise, true
	}
	m := Mode(s)
	return m, m.Valid()
}

// AgentAnalysis is one council member's independent verdict.
type AgentAnalysis struct {
	AgentRole   Role     `json:"agent_role"`
	Verdict     Verdict  `json:"verdict"`
	Confidence  int      `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Assumptions []string `json:"assumptions"`
}

// NewsArticle is a real-world reference shown next to a result. Display only.
type NewsArticle struct {
	Source   string `json:"source"`
	Date     string `json:"date"`
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

// News is the real-world context attached to a result.
type News struct {
	Explanation string        `json:"explanation"`
	Articles    []NewsArticle `json:"articles"`
}

// AnalysisResult is the consensus for a decision, as produced by the analysis
// service. The console never mutates one; it derives copies for display.
// Timestamp is kept as the opaque string the service sent.
type AnalysisResult struct {
	ID                string          `json:"id,omitempty"`
	DecisionText      string          `json:"decision_text"`
	FinalVerdict      Verdict         `json:"final_verdict"`
	AverageConfidence int             `json:"average_confidence"`
	Explanation       string          `json:"explanation"`
	AgentAnalyses     []AgentAnalysis `json:"agent_analyses"`
	News              *News           `json:"news,omitempty"`
	Mode              Mode            `json:"mode,omitempty"`
	Timestamp         string          `json:"timestamp,omitempty"`
}

// HistoryEntry is an AnalysisResult as retained by the analysis service.
type HistoryEntry = AnalysisResult

// WithDefaults returns a copy with empty fields replaced by display placeholders.
func (a AgentAnalysis) WithDefaults() AgentAnalysis {
	if a.AgentRole == "" {
		a.AgentRole = DefaultRole
	}
	if a.Verdict == "" {
		a.Verdict = Conditional
	}
	if a.Reasoning == "" {
		a.Reasoning = DefaultReasoning
	}
	if a.Assumptions == nil {
		a.Assumptions = []string{}
	}
	return a
}

// Clone returns a deep copy of r.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.AgentAnalyses != nil {
		cp.AgentAnalyses = make([]AgentAnalysis, len(r.AgentAnalyses))
		for i, a := range r.AgentAnalyses {
			if a.Assumptions != nil {
				a.Assumptions = append([]string(nil), a.Assumptions...)
			}
			cp.AgentAnalyses[i] = a
		}
	}
	if r.News != nil {
		n := *r.News
		n.Articles = append([]NewsArticle(nil), r.News.Articles...)
		cp.News = &n
	}
	return &cp
}

// WithDefaults returns a deep copy with placeholders applied to the result and
// every agent. Agent order is preserved.
func (r *AnalysisResult) WithDefaults() *AnalysisResult {
	cp := r.Clone()
	if cp == nil {
		return nil
	}
	if cp.FinalVerdict == "" {
		cp.FinalVerdict = Conditional
	}
	if cp.Explanation == "" {
		cp.Explanation = DefaultExplanation
	}
	if cp.AgentAnalyses == nil {
		cp.AgentAnalyses = []AgentAnalysis{}
	}
	for i := range cp.AgentAnalyses {
		cp.AgentAnalyses[i] = cp.AgentAnalyses[i].WithDefaults()
	}
	return cp
}
