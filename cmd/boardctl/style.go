package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/linnemanlabs/boardroom/internal/consensus"
	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/history"
	"github.com/linnemanlabs/boardroom/internal/sanitize"
)

const maxListText = 60

// palette maps the verdict colour names to terminal colours.
var palette = map[string]lipgloss.Color{
	"emerald": lipgloss.Color("#10B981"),
	"rose":    lipgloss.Color("#F43F5E"),
	"amber":   lipgloss.Color("#F59E0B"),
}

type styles struct {
	r     *lipgloss.Renderer
	title lipgloss.Style
	faint lipgloss.Style
	label lipgloss.Style
}

// newStyles binds styles to w so colour is only emitted on terminals.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		r:     r,
		title: r.NewStyle().Bold(true),
		faint: r.NewStyle().Faint(true),
		label: r.NewStyle().Bold(true).Width(18),
	}
}

func (s styles) verdict(v council.Verdict) lipgloss.Style {
	return s.r.NewStyle().Bold(true).Foreground(palette[v.Style().Color])
}

func printResult(w io.Writer, result *council.AnalysisResult) {
	s := newStyles(w)
	r := result.WithDefaults()
	vs := r.FinalVerdict.Style()
	tally := consensus.Tally(r.AgentAnalyses)

	fmt.Fprintln(w, s.verdict(r.FinalVerdict).Render(fmt.Sprintf("%s: %s", vs.Title, r.FinalVerdict)))
	fmt.Fprintf(w, "%s %d%% average confidence, %d of %d in favour\n\n",
		s.faint.Render("consensus"), r.AverageConfidence, tally.Approvals, tally.Total)

	for _, a := range r.AgentAnalyses {
		fmt.Fprintf(w, "%s %s %3d%%\n",
			s.label.Render(string(a.AgentRole)),
			s.verdict(a.Verdict).Width(12).Render(string(a.Verdict)),
			a.Confidence,
		)
		fmt.Fprintf(w, "  %s\n", sanitize.String(a.Reasoning))
	}

	fmt.Fprintf(w, "\n%s\n%s\n", s.title.Render("Executive summary"), sanitize.String(r.Explanation))
}

func printHistory(w io.Writer, entries []*council.HistoryEntry, query string) {
	s := newStyles(w)

	var shown []*council.HistoryEntry
	for i, e := range entries {
		if !history.Matches(e, query) {
			continue
		}
		shown = append(shown, e)
		verdict := e.FinalVerdict
		if verdict == "" {
			verdict = council.Conditional
		}
		fmt.Fprintf(w, "%s %s %s %3d%%  %s\n",
			s.faint.Render(fmt.Sprintf("[%d]", i)),
			s.faint.Render(orDash(e.Timestamp)),
			s.verdict(verdict).Width(12).Render(string(verdict)),
			e.AverageConfidence,
			clip(strings.Join(strings.Fields(e.DecisionText), " "), maxListText),
		)
	}

	if len(shown) == 0 {
		fmt.Fprintln(w, s.faint.Render("no analyses found"))
		return
	}
	st := history.Summarize(shown)
	fmt.Fprintf(w, "\n%d decisions, %.0f%% approved, %.0f%% average confidence\n",
		st.Total, st.ApprovalRate, st.AverageConfidence)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
