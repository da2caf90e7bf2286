package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atotto/clipboard"

	"github.com/linnemanlabs/boardroom/internal/council"
)

func sampleResult() *council.AnalysisResult {
	return &council.AnalysisResult{
		DecisionText:      "Expand to APAC",
		FinalVerdict:      council.Approve,
		AverageConfidence: 82,
		Explanation:       "(FALLBACK: news) Board consensus is Approve with High agreement.",
		AgentAnalyses: []council.AgentAnalysis{
			{AgentRole: council.Finance, Verdict: council.Approve, Confidence: 90, Reasoning: "(FALLBACK: claude-haiku) Strong margins.", Assumptions: []string{"FX stable", "No new tariffs"}},
			{AgentRole: council.Risk, Verdict: council.Conditional, Confidence: 60, Reasoning: "Regulatory exposure."},
		},
	}
}

func TestDocument(t *testing.T) {
	t.Parallel()

	doc := Document(sampleResult())

	wants := []string{
		"# BoardGPT Strategic Analysis Report\n",
		"Decision: Expand to APAC\n",
		"Verdict: Approve\n",
		"Confidence: 82%\n",
		"## Executive Summary\nBoard consensus is Approve with High agreement.\n",
		"### Finance: Approve (90% Confidence)\nReasoning: Strong margins.\nAssumptions: FX stable, No new tariffs\n",
		"### Risk: Conditional (60% Confidence)\nReasoning: Regulatory exposure.\nAssumptions: \n",
	}
	for _, w := range wants {
		if !strings.Contains(doc, w) {
			t.Errorf("document missing %q\n---\n%s", w, doc)
		}
	}
	if strings.Contains(strings.ToLower(doc), "(fallback:") {
		t.Error("document still contains a fallback annotation")
	}
	if strings.Index(doc, "### Finance") > strings.Index(doc, "### Risk") {
		t.Error("agent sections out of order")
	}
}

func TestDocument_NoAgents(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	r.AgentAnalyses = nil
	doc := Document(r)

	if !strings.HasSuffix(doc, "## Agent Analyses\n") {
		t.Errorf("document should end with an empty agent section:\n%s", doc)
	}
	if strings.Contains(doc, "###") {
		t.Error("unexpected agent section")
	}
	if !strings.Contains(doc, "Decision: Expand to APAC") {
		t.Error("header fields missing")
	}
}

func TestDocument_Placeholders(t *testing.T) {
	t.Parallel()

	for _, r := range []*council.AnalysisResult{nil, {}} {
		doc := Document(r)
		for _, w := range []string{"Decision: Unknown\n", "Verdict: Unknown\n", "Confidence: 0%\n", "No summary available."} {
			if !strings.Contains(doc, w) {
				t.Errorf("document missing %q", w)
			}
		}
	}
}

func TestDocument_DoesNotMutate(t *testing.T) {
	t.Parallel()

	r := sampleResult()
	_ = Document(r)
	if r.AgentAnalyses[0].Reasoning != "(FALLBACK: claude-haiku) Strong margins." {
		t.Error("Document mutated the result")
	}
}

func TestShareSummary(t *testing.T) {
	t.Parallel()

	got := ShareSummary(&council.AnalysisResult{FinalVerdict: council.Approve, AverageConfidence: 82, DecisionText: "Expand to APAC"})
	for _, w := range []string{"Approve", "82", "Expand to APAC"} {
		if !strings.Contains(got, w) {
			t.Errorf("summary %q missing %q", got, w)
		}
	}
	if want := `BoardGPT Analysis: Approve (82%) for "Expand to APAC"`; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestShareSummary_Defaults(t *testing.T) {
	t.Parallel()

	if got, want := ShareSummary(nil), `BoardGPT Analysis: N/A (0%) for ""`; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
	got := ShareSummary(&council.AnalysisResult{DecisionText: "line one\nline two"})
	if strings.Contains(got, "\n") {
		t.Errorf("summary %q spans lines", got)
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1767225600123)
	if got, want := Filename(ts), "BoardGPT_Report_1767225600123.md"; got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestDirExporter(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	path, err := DirExporter{Dir: dir}.Export(context.Background(), "BoardGPT_Report_1.md", "# hi\n")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "# hi\n" {
		t.Errorf("content = %q", string(b))
	}
}

func TestDirExporter_RejectsPaths(t *testing.T) {
	t.Parallel()

	_, err := DirExporter{Dir: t.TempDir()}.Export(context.Background(), "../escape.md", "x")
	if err == nil {
		t.Fatal("expected error for a name containing a path")
	}
}

func TestSystemClipboard(t *testing.T) {
	// Not parallel: swaps clipboardWriteAll.
	if clipboard.Unsupported {
		t.Skip("no clipboard utility available")
	}

	prev := clipboardWriteAll
	defer func() { clipboardWriteAll = prev }()

	var got string
	clipboardWriteAll = func(s string) error { got = s; return nil }
	if err := (SystemClipboard{}).WriteAll("summary"); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if got != "summary" {
		t.Errorf("clipboard got %q", got)
	}

	clipboardWriteAll = func(string) error { return errors.New("no display") }
	if err := (SystemClipboard{}).WriteAll("summary"); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	out, err := Render(Document(sampleResult()), 0)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "APAC") {
		t.Errorf("rendered output missing decision text:\n%s", out)
	}
}

func TestDocument_AgentPlaceholders(t *testing.T) {
	t.Parallel()

	doc := Document(&council.AnalysisResult{
		DecisionText:  "Hire a CFO",
		FinalVerdict:  council.Approve,
		AgentAnalyses: []council.AgentAnalysis{{Confidence: 50}},
	})

	for _, w := range []string{
		"### Advisor: Conditional (50% Confidence)\n",
		"Reasoning: No reasoning provided.\n",
		"Assumptions: \n",
	} {
		if !strings.Contains(doc, w) {
			t.Errorf("document missing %q:\n%s", w, doc)
		}
	}
	if strings.Contains(doc, "### :") {
		t.Errorf("empty agent fields rendered raw:\n%s", doc)
	}
}
