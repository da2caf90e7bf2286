package deliberation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linnemanlabs/boardroom/internal/council"
)

var errNoJSON = errors.New("no JSON object in model output")

// extractJSON returns the outermost JSON object in s, tolerating markdown
// fences and prose around it.
func extractJSON(s string) ([]byte, error) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, errNoJSON
	}
	return []byte(s[start : end+1]), nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt struct {
	v   int
	set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("confidence: %w", err)
	}
	f.v, f.set = int(math.Round(n)), true
	return nil
}

type agentPayload struct {
	Verdict     string            `json:"verdict"`
	Confidence  flexInt           `json:"confidence"`
	Reasoning   string            `json:"reasoning"`
	Assumptions []json.RawMessage `json:"assumptions"`
}

// parseAgent decodes a council member's answer. Missing verdicts count as a
// rejection and missing confidence as zero.
func parseAgent(role council.Role, text string) (council.AgentAnalysis, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return council.AgentAnalysis{}, err
	}
	var p agentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return council.AgentAnalysis{}, fmt.Errorf("decode agent answer: %w", err)
	}

	a := council.AgentAnalysis{
		AgentRole:   role,
		Verdict:     normalizeVerdict(p.Verdict),
		Confidence:  min(max(p.Confidence.v, 0), 100),
		Reasoning:   strings.TrimSpace(p.Reasoning),
		Assumptions: make([]string, 0, len(p.Assumptions)),
	}
	if a.Reasoning == "" {
		a.Reasoning = council.DefaultReasoning
	}
	for _, r := range p.Assumptions {
		if s := assumptionText(r); s != "" {
			a.Assumptions = append(a.Assumptions, s)
		}
	}
	return a, nil
}

func normalizeVerdict(s string) council.Verdict {
	s = strings.TrimSpace(s)
	for _, v := range []council.Verdict{council.Approve, council.Reject, council.Conditional} {
		if strings.EqualFold(s, string(v)) {
			return v
		}
	}
	if s == "" {
		return council.Reject
	}
	return council.Verdict(s)
}

// assumptionText flattens an assumption that may be a string, an object with
// an "assumption" or "text" member, or any other JSON value.
func assumptionText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, k := range []string{"assumption", "text"} {
			if v, ok := obj[k].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

// parseNews decodes the news answer. Both members must be present.
func parseNews(text string) (*council.News, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var p struct {
		Articles    *[]council.NewsArticle `json:"articles"`
		Explanation *string                `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode news answer: %w", err)
	}
	if p.Articles == nil || p.Explanation == nil {
		return nil, errors.New("news answer is missing articles or explanation")
	}
	return &council.News{Explanation: *p.Explanation, Articles: *p.Articles}, nil
}
