// Package supervisor is the console's last line of error handling. The first
// unrecovered panic trips it, and from then on every API call is answered
// with a fallback document until the process restarts.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/linnemanlabs/go-core/log"
)

// FallbackMessage is shown while the supervisor is tripped.
const FallbackMessage = "Something went wrong"

// Fallback is the body served while tripped.
type Fallback struct {
	Fallback bool   `json:"fallback"`
	Message  string `json:"message"`
	Detail   string `json:"detail,omitempty"`
}

// Supervisor captures panics from HTTP handlers and background goroutines.
type Supervisor struct {
	logger log.Logger
	onTrip func()

	mu      sync.RWMutex
	tripped bool
	detail  string
}

// New creates an untripped supervisor. onTrip, if set, runs once on the first
// captured panic.
func New(logger log.Logger, onTrip func()) *Supervisor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Supervisor{logger: logger, onTrip: onTrip}
}

// Capture records a recovered panic value and trips the supervisor. Only the
// first detail is kept.
func (s *Supervisor) Capture(ctx context.Context, v any) {
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("%v", v)
	}
	s.logger.Error(ctx, err, "unhandled panic, console entering fallback mode", "stack", string(debug.Stack()))

	s.mu.Lock()
	first := !s.tripped
	if first {
		s.tripped = true
		s.detail = err.Error()
	}
	s.mu.Unlock()

	if first && s.onTrip != nil {
		s.onTrip()
	}
}

// Tripped reports whether a panic was captured and its detail.
func (s *Supervisor) Tripped() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tripped, s.detail
}

// Fallback returns the document served while tripped.
func (s *Supervisor) Fallback() Fallback {
	_, detail := s.Tripped()
	return Fallback{Fallback: true, Message: FallbackMessage, Detail: detail}
}

// Go runs fn on a new goroutine, capturing any panic it raises.
func (s *Supervisor) Go(ctx context.Context, fn func()) {
	go func() {
		defer func() {
			if v := recover(); v != nil {
				s.Capture(ctx, v)
			}
		}()
		fn()
	}()
}

// Middleware answers 503 with the fallback document once tripped, and trips
// on any panic escaping next.
func (s *Supervisor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tripped, _ := s.Tripped(); tripped {
			s.writeFallback(w)
			return
		}

		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(v)
			}
			s.Capture(r.Context(), v)
			s.writeFallback(w)
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Supervisor) writeFallback(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(s.Fallback())
}
