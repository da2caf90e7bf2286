package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/boardroom/internal/council"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockAnalyzer implements Analyzer. When gate is non-nil every call blocks
// until it is closed.
type mockAnalyzer struct {
	mu     sync.Mutex
	calls  []council.Submission
	gate   chan struct{}
	result *council.AnalysisResult
	err    error
}

func (m *mockAnalyzer) Analyze(_ context.Context, sub council.Submission) (*council.AnalysisResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sub)
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result.Clone(), m.err
}

func (m *mockAnalyzer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockAnalyzer) lastCall() council.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

// mockHistory implements HistoryRefresher.
type mockHistory struct {
	refreshes atomic.Int32
	gate      chan struct{}
}

func (m *mockHistory) Refresh(context.Context) []*council.HistoryEntry {
	if m.gate != nil {
		<-m.gate
	}
	m.refreshes.Add(1)
	return nil
}

// detailError mimics the analysis client error carrying a service message.
type detailError struct{ detail string }

func (e *detailError) Error() string       { return "analysis service: " + e.detail }
func (e *detailError) ErrorDetail() string { return e.detail }

func sampleResult() *council.AnalysisResult {
	return &council.AnalysisResult{
		ID:                "01J",
		DecisionText:      "Expand to APAC",
		FinalVerdict:      council.Approve,
		AverageConfidence: 82,
		Explanation:       "Board consensus is Approve.",
		AgentAnalyses: []council.AgentAnalysis{
			{AgentRole: council.Finance, Verdict: council.Approve, Confidence: 90, Reasoning: "(FALLBACK: claude-haiku) Strong margins."},
			{AgentRole: council.Risk, Verdict: council.Reject, Confidence: 70, Reasoning: "FX exposure."},
			{AgentRole: council.Strategy, Verdict: council.Approve, Confidence: 85},
		},
	}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis did not complete")
	}
}

func TestSubmit_EmptyText(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{result: sampleResult()}
	o := New(an, nil, log.Nop(), Hooks{})

	for _, text := range []string{"", "   ", "\n\t "} {
		done, err := o.Submit(context.Background(), council.Submission{Text: text})
		if !errors.Is(err, ErrEmptyText) {
			t.Fatalf("Submit(%q) err = %v, want ErrEmptyText", text, err)
		}
		if done != nil {
			t.Error("expected nil done channel")
		}
	}
	if an.callCount() != 0 {
		t.Errorf("analyzer called %d times, want 0", an.callCount())
	}
	if s := o.Snapshot(); s.State != StateIdle || s.View != ViewDashboard {
		t.Errorf("state = %s view = %s, want idle/dashboard", s.State, s.View)
	}
}

func TestSubmit_Success(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{result: sampleResult()}
	hist := &mockHistory{}
	o := New(an, hist, log.Nop(), Hooks{})

	done, err := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, done)
	o.Wait()

	s := o.Snapshot()
	if s.State != StateReady {
		t.Fatalf("state = %s, want ready", s.State)
	}
	if s.View != ViewResults {
		t.Errorf("view = %s, want results", s.View)
	}
	if s.Busy {
		t.Error("expected not busy")
	}
	if s.Result == nil || s.Result.FinalVerdict != council.Approve {
		t.Fatalf("result = %+v", s.Result)
	}
	if got := s.Result.AgentAnalyses[0].Reasoning; got != "Strong margins." {
		t.Errorf("reasoning = %q, want sanitized", got)
	}
	if got := s.Result.AgentAnalyses[2].Reasoning; got != council.DefaultReasoning {
		t.Errorf("reasoning = %q, want default", got)
	}
	if s.Tally == nil || s.Tally.Approvals != 2 || s.Tally.Rejections != 1 || s.Tally.Total != 3 {
		t.Errorf("tally = %+v", s.Tally)
	}
	if got := hist.refreshes.Load(); got != 1 {
		t.Errorf("history refreshed %d times, want 1", got)
	}

	raw, ok := o.Result()
	if !ok {
		t.Fatal("expected a result")
	}
	if raw.AgentAnalyses[0].Reasoning != "(FALLBACK: claude-haiku) Strong margins." {
		t.Error("Result should return the unsanitized copy")
	}
}

func TestSubmit_BusyRejectsSecondCall(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{result: sampleResult(), gate: make(chan struct{})}
	o := New(an, nil, log.Nop(), Hooks{})

	done, err := o.Submit(context.Background(), council.Submission{Text: "first"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := o.Submit(context.Background(), council.Submission{Text: "second"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Submit err = %v, want ErrBusy", err)
	}
	if s := o.Snapshot(); s.State != StateSubmitting || !s.Busy {
		t.Errorf("state = %s busy = %v, want submitting/busy", s.State, s.Busy)
	}

	close(an.gate)
	waitDone(t, done)
	o.Wait()

	if an.callCount() != 1 {
		t.Errorf("analyzer called %d times, want 1", an.callCount())
	}
	if an.lastCall().Text != "first" {
		t.Errorf("analyzed %q, want first", an.lastCall().Text)
	}
	if s := o.Snapshot(); s.State != StateReady {
		t.Errorf("state = %s, want ready", s.State)
	}
}

func TestSubmit_Failure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"service detail", &detailError{detail: "Decision text too short"}, "Decision text too short"},
		{"wrapped detail", errors.Join(errors.New("x"), &detailError{detail: "quota exceeded"}), "quota exceeded"},
		{"blank detail", &detailError{detail: "  "}, FailureMessage},
		{"transport error", errors.New("connection refused"), FailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			an := &mockAnalyzer{err: tt.err}
			hist := &mockHistory{}
			o := New(an, hist, log.Nop(), Hooks{})

			done, err := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			waitDone(t, done)
			o.Wait()

			s := o.Snapshot()
			if s.State != StateFailed {
				t.Fatalf("state = %s, want failed", s.State)
			}
			if s.Message != tt.want {
				t.Errorf("message = %q, want %q", s.Message, tt.want)
			}
			if s.Result != nil {
				t.Error("expected no result after failure")
			}
			if hist.refreshes.Load() != 0 {
				t.Error("history should not refresh after a failure")
			}
		})
	}
}

func TestSubmit_NilResultFails(t *testing.T) {
	t.Parallel()

	o := New(&mockAnalyzer{}, nil, log.Nop(), Hooks{})
	done, err := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, done)

	if s := o.Snapshot(); s.State != StateFailed || s.Message != FailureMessage {
		t.Errorf("state = %s message = %q", s.State, s.Message)
	}
}

func TestSubmit_RetryAfterFailure(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{err: errors.New("boom")}
	o := New(an, nil, log.Nop(), Hooks{})

	done, _ := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	waitDone(t, done)

	an.mu.Lock()
	an.err = nil
	an.result = sampleResult()
	an.mu.Unlock()

	done, err := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	if err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	waitDone(t, done)

	s := o.Snapshot()
	if s.State != StateReady || s.Message != "" {
		t.Errorf("state = %s message = %q, want ready with no message", s.State, s.Message)
	}
}

func TestSubmit_ResubmitClearsPreviousResult(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{result: sampleResult()}
	o := New(an, nil, log.Nop(), Hooks{})

	done, _ := o.Submit(context.Background(), council.Submission{Text: "first"})
	waitDone(t, done)

	gate := make(chan struct{})
	an.mu.Lock()
	an.gate = gate
	an.mu.Unlock()

	done, err := o.Submit(context.Background(), council.Submission{Text: "second"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s := o.Snapshot()
	if s.State != StateSubmitting || s.Result != nil || s.Tally != nil {
		t.Errorf("state = %s result = %v, want submitting with no result", s.State, s.Result)
	}

	close(gate)
	waitDone(t, done)
	o.Wait()
}

func TestSubmit_Mode(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{result: sampleResult()}
	o := New(an, nil, log.Nop(), Hooks{})

	if o.Mode() != council.ModeEnterprise {
		t.Fatalf("default mode = %s", o.Mode())
	}
	if err := o.SetMode("hobby"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("SetMode(hobby) err = %v", err)
	}
	if err := o.SetMode(council.ModeStartup); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if an.callCount() != 0 {
		t.Fatal("mode change must not trigger analysis")
	}

	done, _ := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	waitDone(t, done)
	if got := an.lastCall().Mode; got != council.ModeStartup {
		t.Errorf("mode = %s, want startup", got)
	}

	done, _ = o.Submit(context.Background(), council.Submission{Text: "Expand to APAC", Mode: council.ModeEnterprise})
	waitDone(t, done)
	if got := an.lastCall().Mode; got != council.ModeEnterprise {
		t.Errorf("mode = %s, want explicit enterprise", got)
	}
	o.Wait()
}

func TestReset_DuringSubmission(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{result: sampleResult(), gate: make(chan struct{})}
	hist := &mockHistory{}
	o := New(an, hist, log.Nop(), Hooks{})
	o.SetDraft("Expand to APAC")

	done, err := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s := o.Reset()
	if s.State != StateIdle || s.Result != nil || s.Message != "" || s.Draft != "" || s.View != ViewDashboard {
		t.Fatalf("after reset: %+v", s)
	}
	if !s.Busy {
		t.Error("in-flight guard should survive reset")
	}
	if _, err := o.Submit(context.Background(), council.Submission{Text: "another"}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Submit during orphaned call err = %v, want ErrBusy", err)
	}

	close(an.gate)
	waitDone(t, done)
	o.Wait()

	s = o.Snapshot()
	if s.State != StateIdle || s.Result != nil {
		t.Errorf("late outcome applied: state = %s", s.State)
	}
	if s.Busy {
		t.Error("guard should release once the call returns")
	}
	if hist.refreshes.Load() != 0 {
		t.Error("discarded outcome must not refresh history")
	}

	an.mu.Lock()
	an.gate = nil
	an.mu.Unlock()
	done, err = o.Submit(context.Background(), council.Submission{Text: "another"})
	if err != nil {
		t.Fatalf("Submit after release: %v", err)
	}
	waitDone(t, done)
	o.Wait()
}

func TestReset_FromReadyAndFailed(t *testing.T) {
	t.Parallel()

	for _, err := range []error{nil, errors.New("boom")} {
		an := &mockAnalyzer{result: sampleResult(), err: err}
		o := New(an, nil, log.Nop(), Hooks{})
		done, _ := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
		waitDone(t, done)

		s := o.Reset()
		if s.State != StateIdle || s.Result != nil || s.Message != "" {
			t.Errorf("after reset: %+v", s)
		}
		if _, ok := o.Result(); ok {
			t.Error("Result should be empty after reset")
		}
		o.Wait()
	}
}

func TestHistoryRefresh_DoesNotAffectReady(t *testing.T) {
	t.Parallel()

	hist := &mockHistory{gate: make(chan struct{})}
	o := New(&mockAnalyzer{result: sampleResult()}, hist, log.Nop(), Hooks{})

	done, _ := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	waitDone(t, done)

	if s := o.Snapshot(); s.State != StateReady {
		t.Errorf("state = %s while history refresh pending, want ready", s.State)
	}
	close(hist.gate)
	o.Wait()

	if s := o.Snapshot(); s.State != StateReady || s.Result == nil {
		t.Errorf("state = %s after refresh, want ready", s.State)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	an := &mockAnalyzer{result: sampleResult(), gate: make(chan struct{})}
	o := New(an, nil, log.Nop(), Hooks{})

	if _, err := o.Open(nil); !errors.Is(err, ErrNoResult) {
		t.Fatalf("Open(nil) err = %v", err)
	}

	entry := &council.HistoryEntry{DecisionText: "Acquire a competitor", FinalVerdict: council.Reject, AverageConfidence: 30}
	s, err := o.Open(entry)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.State != StateReady || s.View != ViewResults || s.Result.DecisionText != "Acquire a competitor" {
		t.Errorf("after open: %+v", s)
	}
	if s.Result.Explanation != council.DefaultExplanation {
		t.Errorf("explanation = %q, want default", s.Result.Explanation)
	}
	if s.Tally == nil || s.Tally.Total != 5 {
		t.Errorf("tally = %+v, want default council size", s.Tally)
	}

	done, _ := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	if _, err := o.Open(entry); !errors.Is(err, ErrBusy) {
		t.Errorf("Open while submitting err = %v, want ErrBusy", err)
	}
	close(an.gate)
	waitDone(t, done)
	o.Wait()
}

func TestViewAndDraft(t *testing.T) {
	t.Parallel()

	o := New(&mockAnalyzer{}, nil, log.Nop(), Hooks{})

	if err := o.SetView("settings"); !errors.Is(err, ErrInvalidView) {
		t.Fatalf("SetView(settings) err = %v", err)
	}
	for _, v := range []View{ViewHistory, ViewAgents, ViewResults, ViewDashboard} {
		if err := o.SetView(v); err != nil {
			t.Fatalf("SetView(%s): %v", v, err)
		}
		if o.View() != v {
			t.Errorf("View = %s, want %s", o.View(), v)
		}
	}

	o.SetDraft("Hire 20 engineers")
	if o.Draft() != "Hire 20 engineers" {
		t.Errorf("Draft = %q", o.Draft())
	}
	if s := o.Snapshot(); s.State != StateIdle {
		t.Errorf("draft change altered state to %s", s.State)
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	o := New(&mockAnalyzer{result: sampleResult()}, nil, log.Nop(), Hooks{})
	ch, cancel := o.Subscribe(8)

	done, _ := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	waitDone(t, done)
	o.Wait()

	var states []State
	for len(states) < 2 {
		select {
		case s := <-ch:
			states = append(states, s.State)
		case <-time.After(5 * time.Second):
			t.Fatalf("received %v, want two snapshots", states)
		}
	}
	if states[0] != StateSubmitting || states[1] != StateReady {
		t.Errorf("states = %v, want [submitting ready]", states)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	cancel()
}

func TestSubscribe_SlowListenerDrops(t *testing.T) {
	t.Parallel()

	var drops atomic.Int32
	o := New(&mockAnalyzer{}, nil, log.Nop(), Hooks{OnDrop: func() { drops.Add(1) }})
	ch, cancel := o.Subscribe(1)
	defer cancel()

	for _, v := range []View{ViewHistory, ViewAgents, ViewResults} {
		if err := o.SetView(v); err != nil {
			t.Fatalf("SetView: %v", err)
		}
	}

	if got := drops.Load(); got != 2 {
		t.Errorf("drops = %d, want 2", got)
	}
	if s := <-ch; s.View != ViewHistory {
		t.Errorf("buffered view = %s, want history", s.View)
	}
}

func TestHooks(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		submits  []string
		outcomes []string
	)
	hooks := Hooks{
		OnSubmit: func(o string) { mu.Lock(); submits = append(submits, o); mu.Unlock() },
		OnComplete: func(o string, _ float64) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		},
	}
	an := &mockAnalyzer{result: sampleResult(), gate: make(chan struct{})}
	o := New(an, nil, log.Nop(), hooks)

	_, _ = o.Submit(context.Background(), council.Submission{Text: " "})
	done, _ := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	_, _ = o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	o.Reset()
	close(an.gate)
	waitDone(t, done)
	o.Wait()

	mu.Lock()
	defer mu.Unlock()
	if want := []string{"empty", "accepted", "busy"}; !equalStrings(submits, want) {
		t.Errorf("submits = %v, want %v", submits, want)
	}
	if want := []string{"discarded"}; !equalStrings(outcomes, want) {
		t.Errorf("outcomes = %v, want %v", outcomes, want)
	}
}

func TestNew_PanicsWithoutAnalyzer(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	New(nil, nil, log.Nop(), Hooks{})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type panickyAnalyzer struct{}

func (panickyAnalyzer) Analyze(context.Context, council.Submission) (*council.AnalysisResult, error) {
	panic("boom")
}

func TestSubmit_PanicReportedAndReleasesGuard(t *testing.T) {
	t.Parallel()

	var got atomic.Value
	o := New(panickyAnalyzer{}, nil, log.Nop(), Hooks{
		OnPanic: func(_ context.Context, v any) { got.Store(v) },
	})

	done, err := o.Submit(context.Background(), council.Submission{Text: "Expand to APAC"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitDone(t, done)
	o.Wait()

	if v, _ := got.Load().(string); v != "boom" {
		t.Errorf("OnPanic got %v, want boom", got.Load())
	}
	snap := o.Snapshot()
	if snap.State != StateFailed || snap.Busy {
		t.Errorf("state = %s busy = %v, want failed and not busy", snap.State, snap.Busy)
	}
	if snap.Message != FailureMessage {
		t.Errorf("message = %q, want %q", snap.Message, FailureMessage)
	}
}
