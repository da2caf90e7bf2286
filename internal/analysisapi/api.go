// Package analysisapi exposes the analysis service over HTTP: decisions go in
// on /analyze and the retained history comes out of /history.
package analysisapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/deliberation"
)

// AnalysisService defines the business operations analysisapi needs.
type AnalysisService interface {
	Analyze(ctx context.Context, req deliberation.Request) (*council.AnalysisResult, error)
	History(ctx context.Context) ([]*council.AnalysisResult, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    AnalysisService
}

// New creates a new API handler.
func New(logger log.Logger, svc AnalysisService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("analysis service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router. Callers wrap r with
// authentication when a token is configured.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Post("/analyze", a.handleAnalyze)
	r.Get("/history", a.handleHistory)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := a.svc.History(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list history")
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*council.AnalysisResult{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail answers with the {"detail": ...} error body API clients parse.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
