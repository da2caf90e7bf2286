// Package consoleapi exposes the decision console over HTTP: orchestrator
// state and commands, the history archive, report export and sharing, and a
// WebSocket stream of state changes.
package consoleapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/history"
	"github.com/linnemanlabs/boardroom/internal/orchestrator"
	"github.com/linnemanlabs/boardroom/internal/report"
)

const (
	maxUploadBytes = 5 << 20
	maxFormMemory  = 1 << 20
)

// Orchestrator defines the console operations the API drives.
type Orchestrator interface {
	Submit(ctx context.Context, sub council.Submission) (<-chan struct{}, error)
	Reset() orchestrator.Snapshot
	Open(entry *council.HistoryEntry) (orchestrator.Snapshot, error)
	SetMode(m council.Mode) error
	SetView(v orchestrator.View) error
	SetDraft(text string)
	Draft() string
	Snapshot() orchestrator.Snapshot
	Result() (*council.AnalysisResult, bool)
	Subscribe(buffer int) (<-chan orchestrator.Snapshot, func())
}

// History is the decision archive held by the console.
type History interface {
	Refresh(ctx context.Context) []*council.HistoryEntry
	Entries() []*council.HistoryEntry
	At(i int) (*council.HistoryEntry, bool)
}

// Options carries the optional collaborators of the API.
type Options struct {
	Exporter  report.Exporter
	Clipboard report.Clipboard
	Hooks     Hooks
	Now       func() time.Time
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	// OnDeliver is called for every export or share with the action
	// ("export", "share", "download") and "ok" or "error".
	OnDeliver func(action, outcome string)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	orch    Orchestrator
	history History
	opts    Options
}

// New creates a new API handler.
func New(logger log.Logger, orch Orchestrator, hist History, opts Options) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if orch == nil {
		panic(xerrors.New("orchestrator is required"))
	}
	if hist == nil {
		panic(xerrors.New("history index is required"))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &API{
		logger:  logger,
		orch:    orch,
		history: hist,
		opts:    opts,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", a.handleState)
		r.Post("/decisions", a.handleSubmit)
		r.Post("/reset", a.handleReset)
		r.Put("/mode", a.handleSetMode)
		r.Put("/view", a.handleSetView)
		r.Put("/draft", a.handleSetDraft)

		r.Get("/history", a.handleHistory)
		r.Post("/history/refresh", a.handleRefreshHistory)
		r.Post("/history/{index}/open", a.handleOpenHistory)

		r.Get("/consensus", a.handleConsensus)
		r.Get("/agents", a.handleAgents)

		r.Get("/report", a.handleDownloadReport)
		r.Post("/report/export", a.handleExportReport)
		r.Post("/share", a.handleShare)
	})
}

// RegisterEvents attaches the WebSocket stream. It is kept apart from
// RegisterRoutes so it can bypass response compression.
func (a *API) RegisterEvents(r chi.Router) {
	r.Get("/api/v1/events", a.handleEvents)
}

func (a *API) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxFormMemory)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	sub := council.Submission{Text: r.FormValue("text")}
	if _, ok := r.Form["text"]; !ok {
		sub.Text = a.orch.Draft()
	}

	if raw := strings.TrimSpace(r.FormValue("mode")); raw != "" {
		m, ok := council.ParseMode(raw)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "mode must be enterprise or startup")
			return
		}
		sub.Mode = m
	}

	att, err := readAttachment(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub.Attachment = att

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("boardroom.decision.mode", string(sub.Mode)),
		attribute.Bool("boardroom.decision.attachment", att != nil),
	)

	if _, err := a.orch.Submit(r.Context(), sub); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrEmptyText):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, orchestrator.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		default:
			a.logger.Error(r.Context(), err, "failed to submit decision")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, a.orch.Snapshot())
}

func readAttachment(r *http.Request) (*council.Attachment, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("invalid file upload")
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return nil, errors.New("invalid file upload")
	}
	if len(data) > maxUploadBytes {
		return nil, errors.New("file exceeds 5 MiB")
	}
	return &council.Attachment{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (a *API) handleReset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.orch.Reset())
}

func (a *API) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode council.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := a.orch.SetMode(body.Mode); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "mode must be enterprise or startup")
		return
	}
	writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *API) handleSetView(w http.ResponseWriter, r *http.Request) {
	var body struct {
		View orchestrator.View `json:"view"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := a.orch.SetView(body.View); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "view must be dashboard, results, history or agents")
		return
	}
	writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

func (a *API) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	a.orch.SetDraft(body.Text)
	writeJSON(w, http.StatusOK, a.orch.Snapshot())
}

// historyItem pairs an archive entry with its position, which is what
// /history/{index}/open expects.
type historyItem struct {
	Index int                    `json:"index"`
	Entry *council.HistoryEntry `json:"entry"`
}

type historyResponse struct {
	Query   string        `json:"query,omitempty"`
	Entries []historyItem `json:"entries"`
	Stats   history.Stats `json:"stats"`
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildHistory(a.history.Entries(), r.URL.Query().Get("q")))
}

func (a *API) handleRefreshHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildHistory(a.history.Refresh(r.Context()), ""))
}

func buildHistory(entries []*council.HistoryEntry, query string) historyResponse {
	resp := historyResponse{
		Query:   query,
		Entries: []historyItem{},
		Stats:   history.Summarize(entries),
	}
	for i, e := range entries {
		if !history.Matches(e, query) {
			continue
		}
		// Search sanitizes a copy; a single-entry call keeps the index.
		resp.Entries = append(resp.Entries, historyItem{Index: i, Entry: history.Search([]*council.HistoryEntry{e}, "")[0]})
	}
	return resp
}

func (a *API) handleOpenHistory(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	entry, ok := a.history.At(i)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	snap, err := a.orch.Open(entry)
	if err != nil {
		if errors.Is(err, orchestrator.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleConsensus(w http.ResponseWriter, _ *http.Request) {
	snap := a.orch.Snapshot()
	if snap.Tally == nil {
		writeError(w, http.StatusConflict, orchestrator.ErrNoResult.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap.Tally)
}

func (a *API) handleAgents(w http.ResponseWriter, _ *http.Request) {
	profiles := make([]council.Profile, 0, len(council.Roles))
	for _, role := range council.Roles {
		profiles = append(profiles, role.Profile())
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (a *API) handleDownloadReport(w http.ResponseWriter, _ *http.Request) {
	result, ok := a.orch.Result()
	if !ok {
		writeError(w, http.StatusConflict, orchestrator.ErrNoResult.Error())
		return
	}
	a.delivered("download", "ok")
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(a.opts.Now())+`"`)
	_, _ = w.Write([]byte(report.Document(result)))
}

func (a *API) handleExportReport(w http.ResponseWriter, r *http.Request) {
	result, ok := a.orch.Result()
	if !ok {
		writeError(w, http.StatusConflict, orchestrator.ErrNoResult.Error())
		return
	}
	if a.opts.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "report export is not configured")
		return
	}

	name := report.Filename(a.opts.Now())
	path, err := a.opts.Exporter.Export(r.Context(), name, report.Document(result))
	if err != nil {
		a.logger.Warn(r.Context(), "report export failed", "error", err, "filename", name)
		a.delivered("export", "error")
		writeError(w, http.StatusBadGateway, "export failed: "+err.Error())
		return
	}
	a.delivered("export", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"filename": name, "path": path})
}

func (a *API) handleShare(w http.ResponseWriter, r *http.Request) {
	result, ok := a.orch.Result()
	if !ok {
		writeError(w, http.StatusConflict, orchestrator.ErrNoResult.Error())
		return
	}
	if a.opts.Clipboard == nil {
		writeError(w, http.StatusNotImplemented, "clipboard is not configured")
		return
	}

	summary := report.ShareSummary(result)
	if err := a.opts.Clipboard.WriteAll(summary); err != nil {
		a.logger.Warn(r.Context(), "share failed", "error", err)
		a.delivered("share", "error")
		writeError(w, http.StatusBadGateway, "share failed: "+err.Error())
		return
	}
	a.delivered("share", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (a *API) delivered(action, outcome string) {
	if a.opts.Hooks.OnDeliver != nil {
		a.opts.Hooks.OnDeliver(action, outcome)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
