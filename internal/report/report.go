// Package report serializes a completed analysis into a markdown report and a
// one-line share summary, and hands them to export and clipboard collaborators.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/sanitize"
)

const (
	unknown            = "Unknown"
	noSummary          = "No summary available."
	assumptionSep      = ", "
	filenamePrefix     = "BoardGPT_Report_"
	filenameExtension  = ".md"
	shareVerdictAbsent = "N/A"
)

// Document renders result as a markdown report. Missing fields degrade to
// placeholders, agents taking the same ones the console shows; a result
// without agents yields an empty agent section.
func Document(result *council.AnalysisResult) string {
	if result == nil {
		result = &council.AnalysisResult{}
	}

	var b strings.Builder
	b.WriteString("# BoardGPT Strategic Analysis Report\n")
	fmt.Fprintf(&b, "Decision: %s\n", orDefault(result.DecisionText, unknown))
	fmt.Fprintf(&b, "Verdict: %s\n", orDefault(string(result.FinalVerdict), unknown))
	fmt.Fprintf(&b, "Confidence: %d%%\n", result.AverageConfidence)
	b.WriteString("\n## Executive Summary\n")
	b.WriteString(orDefault(sanitize.String(result.Explanation), noSummary))
	b.WriteString("\n\n## Agent Analyses\n")

	for _, a := range result.AgentAnalyses {
		a.Reasoning = sanitize.String(a.Reasoning)
		a = a.WithDefaults()
		fmt.Fprintf(&b, "\n### %s: %s (%d%% Confidence)\n", a.AgentRole, a.Verdict, a.Confidence)
		fmt.Fprintf(&b, "Reasoning: %s\n", a.Reasoning)
		fmt.Fprintf(&b, "Assumptions: %s\n", strings.Join(a.Assumptions, assumptionSep))
	}

	return b.String()
}

// ShareSummary renders the clipboard summary. Line breaks in the decision
// text are folded so the summary stays on one line.
func ShareSummary(result *council.AnalysisResult) string {
	if result == nil {
		result = &council.AnalysisResult{}
	}
	return fmt.Sprintf("BoardGPT Analysis: %s (%d%%) for \"%s\"",
		orDefault(string(result.FinalVerdict), shareVerdictAbsent),
		result.AverageConfidence,
		strings.Join(strings.Fields(result.DecisionText), " "),
	)
}

// Filename returns the export file name for a report generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("%s%d%s", filenamePrefix, t.UnixMilli(), filenameExtension)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
