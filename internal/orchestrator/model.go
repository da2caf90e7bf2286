package orchestrator

import (
	"context"
	"errors"

	"github.com/linnemanlabs/boardroom/internal/consensus"
	"github.com/linnemanlabs/boardroom/internal/council"
)

// FailureMessage is shown when a failed analysis carries no detail.
const FailureMessage = "An error occurred during analysis."

var (
	ErrEmptyText   = errors.New("decision text is empty")
	ErrBusy        = errors.New("an analysis is already in progress")
	ErrNoResult    = errors.New("no analysis result available")
	ErrInvalidMode = errors.New("invalid mode")
	ErrInvalidView = errors.New("invalid view")
)

// State is the lifecycle position of the orchestrator.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// View is the console panel currently shown.
type View string

const (
	ViewDashboard View = "dashboard"
	ViewResults   View = "results"
	ViewHistory   View = "history"
	ViewAgents    View = "agents"
)

// Valid reports whether v names a known panel.
func (v View) Valid() bool {
	switch v {
	case ViewDashboard, ViewResults, ViewHistory, ViewAgents:
		return true
	default:
		return false
	}
}

// Snapshot is a point-in-time copy of everything the console displays.
// Result is sanitized and has display defaults applied.
type Snapshot struct {
	State   State                   `json:"state"`
	Message string                  `json:"message,omitempty"`
	Result  *council.AnalysisResult `json:"result,omitempty"`
	Tally   *consensus.Summary      `json:"tally,omitempty"`
	Mode    council.Mode            `json:"mode"`
	View    View                    `json:"view"`
	Draft   string                  `json:"draft"`
	Busy    bool                    `json:"busy"`
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	// OnSubmit is called for every Submit with "accepted", "busy" or "empty".
	OnSubmit func(outcome string)

	// OnComplete is called when an analysis call returns. outcome is the state
	// entered, or "discarded" when a reset superseded the call.
	OnComplete func(outcome string, seconds float64)

	// OnDrop is called when a subscriber misses a snapshot.
	OnDrop func()

	// OnPanic receives a panic recovered on a background goroutine. When
	// unset the panic is re-raised.
	OnPanic func(ctx context.Context, v any)
}
