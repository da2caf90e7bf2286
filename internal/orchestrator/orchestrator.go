package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/boardroom/internal/consensus"
	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/sanitize"
)

// Analyzer submits a decision to the analysis service.
type Analyzer interface {
	Analyze(ctx context.Context, sub council.Submission) (*council.AnalysisResult, error)
}

// HistoryRefresher reloads the decision history after a successful analysis.
type HistoryRefresher interface {
	Refresh(ctx context.Context) []*council.HistoryEntry
}

// detailer is implemented by collaborator errors that carry a message meant
// for the user.
type detailer interface {
	ErrorDetail() string
}

// Orchestrator owns the console's decision state.
type Orchestrator struct {
	analyzer Analyzer
	history  HistoryRefresher
	logger   log.Logger
	hooks    Hooks

	mu       sync.Mutex
	state    State
	result   *council.AnalysisResult
	message  string
	mode     council.Mode
	view     View
	draft    string
	inFlight bool
	gen      uint64

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	wg sync.WaitGroup
}

// New creates an idle orchestrator. history may be nil.
func New(analyzer Analyzer, history HistoryRefresher, logger log.Logger, hooks Hooks) *Orchestrator {
	if analyzer == nil {
		panic(xerrors.New("orchestrator.New: analyzer is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Orchestrator{
		analyzer: analyzer,
		history:  history,
		logger:   logger,
		hooks:    hooks,
		state:    StateIdle,
		mode:     council.ModeEnterprise,
		view:     ViewDashboard,
		subs:     make(map[int]chan Snapshot),
	}
}

// Submit starts an analysis of sub. The returned channel is closed once the
// call has returned and the orchestrator has moved to ready or failed.
func (o *Orchestrator) Submit(ctx context.Context, sub council.Submission) (<-chan struct{}, error) {
	if strings.TrimSpace(sub.Text) == "" {
		o.submitted("empty")
		return nil, ErrEmptyText
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		o.submitted("busy")
		return nil, ErrBusy
	}
	if sub.Mode == "" {
		sub.Mode = o.mode
	}
	o.inFlight = true
	o.gen++
	gen := o.gen
	o.state = StateSubmitting
	o.result = nil
	o.message = ""
	o.view = ViewResults
	o.publishLocked()
	o.mu.Unlock()

	o.submitted("accepted")

	done := make(chan struct{})
	o.wg.Add(1)
	go o.run(context.WithoutCancel(ctx), gen, sub, done)
	return done, nil
}

func (o *Orchestrator) run(ctx context.Context, gen uint64, sub council.Submission, done chan struct{}) {
	defer o.wg.Done()
	defer close(done)

	settled := false
	defer func() {
		if v := recover(); v != nil {
			o.panicked(ctx, v, gen, !settled)
		}
	}()

	L := o.logger.With("mode", sub.Mode)
	start := time.Now()
	result, err := o.analyzer.Analyze(ctx, sub)
	if err == nil && result == nil {
		err = errors.New("analysis service returned an empty result")
	}
	elapsed := time.Since(start).Seconds()

	o.mu.Lock()
	o.inFlight = false
	settled = true
	if gen != o.gen {
		o.mu.Unlock()
		L.Info(ctx, "discarding analysis outcome superseded by reset", "duration", elapsed)
		o.completed("discarded", elapsed)
		return
	}

	if err != nil {
		o.state = StateFailed
		o.result = nil
		o.message = failureMessage(err)
		o.publishLocked()
		o.mu.Unlock()
		L.Error(ctx, err, "analysis failed", "duration", elapsed)
		o.completed(string(StateFailed), elapsed)
		return
	}

	o.state = StateReady
	o.result = result.Clone()
	o.message = ""
	o.publishLocked()
	o.mu.Unlock()

	L.Info(ctx, "analysis complete",
		"id", result.ID,
		"verdict", result.FinalVerdict,
		"confidence", result.AverageConfidence,
		"agents", len(result.AgentAnalyses),
		"duration", elapsed,
	)
	o.completed(string(StateReady), elapsed)
	o.refreshHistory(ctx)
}

// refreshHistory reloads history in the background. It writes only the
// history index, never orchestrator state.
func (o *Orchestrator) refreshHistory(ctx context.Context) {
	if o.history == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if v := recover(); v != nil {
				o.panicked(ctx, v, 0, false)
			}
		}()
		o.history.Refresh(ctx)
	}()
}

// panicked hands a panic from a background goroutine to Hooks.OnPanic.
// When the goroutine still held the busy guard it is released, and the
// analysis fails unless a reset already superseded it.
func (o *Orchestrator) panicked(ctx context.Context, v any, gen uint64, holding bool) {
	if holding {
		o.mu.Lock()
		o.inFlight = false
		if gen == o.gen {
			o.state = StateFailed
			o.result = nil
			o.message = FailureMessage
			o.publishLocked()
		}
		o.mu.Unlock()
	}
	if o.hooks.OnPanic == nil {
		panic(v)
	}
	o.hooks.OnPanic(ctx, v)
}

// Reset returns to idle and clears the result, message and draft. An
// analysis still in flight keeps the busy guard until it returns; its
// outcome is dropped.
func (o *Orchestrator) Reset() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.state = StateIdle
	o.result = nil
	o.message = ""
	o.draft = ""
	o.view = ViewDashboard
	return o.publishLocked()
}

// Open shows a history entry as the current result.
func (o *Orchestrator) Open(entry *council.HistoryEntry) (Snapshot, error) {
	if entry == nil {
		return Snapshot{}, ErrNoResult
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight {
		return o.snapshotLocked(), ErrBusy
	}
	o.state = StateReady
	o.result = entry.Clone()
	o.message = ""
	o.view = ViewResults
	return o.publishLocked(), nil
}

// SetMode selects the mode used by the next submission.
func (o *Orchestrator) SetMode(m council.Mode) error {
	if !m.Valid() {
		return ErrInvalidMode
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = m
	o.publishLocked()
	return nil
}

// Mode returns the mode used by the next submission.
func (o *Orchestrator) Mode() council.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetView switches the active panel.
func (o *Orchestrator) SetView(v View) error {
	if !v.Valid() {
		return ErrInvalidView
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.view = v
	o.publishLocked()
	return nil
}

// View returns the active panel.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view
}

// SetDraft stores the pending decision text.
func (o *Orchestrator) SetDraft(text string) {
	o.mu.Lock()
	o.draft = text
	o.mu.Unlock()
}

// Draft returns the pending decision text.
func (o *Orchestrator) Draft() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft
}

// Result returns an unsanitized copy of the current result.
func (o *Orchestrator) Result() (*council.AnalysisResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return nil, false
	}
	return o.result.Clone(), true
}

// Snapshot returns the current state for display.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Wait blocks until every background call started by the orchestrator has
// returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:   o.state,
		Message: o.message,
		Mode:    o.mode,
		View:    o.view,
		Draft:   o.draft,
		Busy:    o.inFlight,
	}
	if o.result != nil {
		s.Result = sanitize.Result(o.result).WithDefaults()
		t := consensus.Tally(s.Result.AgentAnalyses)
		s.Tally = &t
	}
	return s
}

func (o *Orchestrator) submitted(outcome string) {
	if o.hooks.OnSubmit != nil {
		o.hooks.OnSubmit(outcome)
	}
}

func (o *Orchestrator) completed(outcome string, seconds float64) {
	if o.hooks.OnComplete != nil {
		o.hooks.OnComplete(outcome, seconds)
	}
}

func failureMessage(err error) string {
	var d detailer
	if errors.As(err, &d) {
		if msg := strings.TrimSpace(d.ErrorDetail()); msg != "" {
			return msg
		}
	}
	return FailureMessage
}
