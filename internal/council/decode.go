package council

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// The analysis service is not trusted to send well-typed results. Decoding
// never fails on a field: numbers given as strings or fractions are coerced,
// and anything else unreadable is left at its zero value so WithDefaults can
// fill it in.

// looseInt accepts a JSON number, a numeric string (optionally ending in
// "%"), or anything else as zero. Fractions are rounded; range is kept.
type looseInt int

func (n *looseInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = 0
			return nil
		}
		b = []byte(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*n = 0
		return nil
	}
	*n = looseInt(math.Round(f))
	return nil
}

// looseString accepts a JSON string, or the literal text of a number or
// boolean. Objects, arrays and null decode as empty.
type looseString string

func (t *looseString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = looseString(s)
		return nil
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' && b[0] != '[' && !bytes.Equal(b, []byte("null")) {
		*t = looseString(b)
		return nil
	}
	*t = ""
	return nil
}

type agentWire struct {
	AgentRole   looseString     `json:"agent_role"`
	Verdict     looseString     `json:"verdict"`
	Confidence  looseInt        `json:"confidence"`
	Reasoning   looseString     `json:"reasoning"`
	Assumptions json.RawMessage `json:"assumptions"`
}

// UnmarshalJSON decodes an agent analysis field by field. A value that is not
// an object decodes as the zero analysis.
func (a *AgentAnalysis) UnmarshalJSON(b []byte) error {
	var w agentWire
	if !isObject(b) || json.Unmarshal(b, &w) != nil {
		*a = AgentAnalysis{}
		return nil
	}
	*a = AgentAnalysis{
		AgentRole:   Role(w.AgentRole),
		Verdict:     Verdict(w.Verdict),
		Confidence:  int(w.Confidence),
		Reasoning:   string(w.Reasoning),
		Assumptions: decodeAssumptions(w.Assumptions),
	}
	return nil
}

type resultWire struct {
	ID                looseString     `json:"id"`
	DecisionText      looseString     `json:"decision_text"`
	FinalVerdict      looseString     `json:"final_verdict"`
	AverageConfidence looseInt        `json:"average_confidence"`
	Explanation       looseString     `json:"explanation"`
	AgentAnalyses     json.RawMessage `json:"agent_analyses"`
	News              json.RawMessage `json:"news"`
	Mode              looseString     `json:"mode"`
	Timestamp         looseString     `json:"timestamp"`
}

// UnmarshalJSON decodes a result field by field. Agent entries that are not
// objects are kept as zero analyses so the council keeps its size; a news
// block that does not decode is dropped.
func (r *AnalysisResult) UnmarshalJSON(b []byte) error {
	var w resultWire
	if !isObject(b) || json.Unmarshal(b, &w) != nil {
		*r = AnalysisResult{}
		return nil
	}
	*r = AnalysisResult{
		ID:                string(w.ID),
		DecisionText:      string(w.DecisionText),
		FinalVerdict:      Verdict(w.FinalVerdict),
		AverageConfidence: int(w.AverageConfidence),
		Explanation:       string(w.Explanation),
		Mode:              Mode(w.Mode),
		Timestamp:         string(w.Timestamp),
	}

	var agents []json.RawMessage
	if json.Unmarshal(w.AgentAnalyses, &agents) == nil && agents != nil {
		r.AgentAnalyses = make([]AgentAnalysis, len(agents))
		for i, raw := range agents {
			_ = r.AgentAnalyses[i].UnmarshalJSON(raw)
		}
	}

	if isObject(w.News) {
		var n News
		if json.Unmarshal(w.News, &n) == nil {
			r.News = &n
		}
	}
	return nil
}

// decodeAssumptions flattens a list whose items may be strings or objects with
// an "assumption" or "text" member. Anything but an array yields nil.
func decodeAssumptions(raw json.RawMessage) []string {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil || items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s looseString
		_ = s.UnmarshalJSON(it)
		if s == "" && isObject(it) {
			var obj map[string]any
			if json.Unmarshal(it, &obj) == nil {
				for _, k := range []string{"assumption", "text"} {
					if v, ok := obj[k].(string); ok && v != "" {
						s = looseString(v)
						break
					}
				}
			}
		}
		if s != "" {
			out = append(out, string(s))
		}
	}
	return out
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}
