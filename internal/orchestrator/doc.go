// Package orchestrator drives the console's decision lifecycle.
//
// An Orchestrator moves between four states:
//
//	idle -> submitting -> ready | failed
//
// Reset returns to idle from any state. A ready or failed orchestrator accepts
// a new submission, which clears the previous result immediately. At most one
// analysis is in flight at a time; a second Submit while one is pending fails
// with ErrBusy and has no effect on the first.
//
// The analysis call runs on its own goroutine and resumes the orchestrator
// when it returns. If Reset happens in between, the late outcome is dropped,
// but the in-flight guard is held until the call actually returns. There is
// no timeout on the call.
package orchestrator
