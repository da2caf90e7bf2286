// Package sanitize strips the diagnostic annotations the analysis service
// embeds in agent narrative text before it is displayed or exported.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/linnemanlabs/boardroom/internal/council"
)

// marker matches "(FALLBACK: ...)" up to the first closing parenthesis, plus
// the whitespace after it. A marker that is never closed runs to end of text.
var marker = regexp.MustCompile(`(?i)\(FALLBACK:[^)]*\)?\s*`)

// String removes every fallback annotation from s and trims the result.
// Removal repeats until nothing matches, so String(String(s)) == String(s).
func String(s string) string {
	for {
		out := marker.ReplaceAllString(s, "")
		if out == s {
			break
		}
		s = out
	}
	return strings.TrimSpace(s)
}

// Clean applies String to string values and returns anything else unchanged.
func Clean(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return String(s)
}

// Result returns a copy of r with every agent's reasoning cleaned.
// Agent order and all other fields are left as they are.
func Result(r *council.AnalysisResult) *council.AnalysisResult {
	cp := r.Clone()
	if cp == nil {
		return nil
	}
	for i := range cp.AgentAnalyses {
		cp.AgentAnalyses[i].Reasoning = String(cp.AgentAnalyses[i].Reasoning)
	}
	return cp
}
