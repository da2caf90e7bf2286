package analysisapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/boardroom/internal/attachment"
	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/deliberation"
)

const (
	// MaxAttachmentBytes bounds an uploaded supporting document.
	MaxAttachmentBytes = 5 << 20
	maxFormMemory      = 1 << 20
	maxJSONBytes       = 1 << 20
)

var errTooLarge = errors.New("file exceeds 5 MiB")

type analyzeRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

// handleAnalyze accepts a JSON body {"text","mode"} or a form with text,
// mode and an optional file part.
func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, att, err := decodeAnalyze(w, r)
	if err != nil {
		switch {
		case errors.Is(err, errTooLarge):
			writeDetail(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			writeDetail(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if len(strings.TrimSpace(body.Text)) < deliberation.MinTextLength {
		writeDetail(w, http.StatusUnprocessableEntity, deliberation.ErrTextTooShort.Error())
		return
	}
	mode, ok := council.ParseMode(strings.TrimSpace(body.Mode))
	if !ok {
		writeDetail(w, http.StatusUnprocessableEntity, deliberation.ErrInvalidMode.Error())
		return
	}

	doc, err := attachment.Extract(att)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("boardroom.mode", string(mode)),
		attribute.Bool("boardroom.decision.document", doc != ""),
	)

	result, err := a.svc.Analyze(r.Context(), deliberation.Request{Text: body.Text, Mode: mode, Document: doc})
	if err != nil {
		switch {
		case errors.Is(err, deliberation.ErrTextTooShort), errors.Is(err, deliberation.ErrInvalidMode):
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		default:
			a.logger.Error(r.Context(), err, "analysis failed")
			writeDetail(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	span.SetAttributes(
		attribute.String("boardroom.analysis.id", result.ID),
		attribute.String("boardroom.verdict", string(result.FinalVerdict)),
	)
	writeJSON(w, http.StatusOK, result)
}

func decodeAnalyze(w http.ResponseWriter, r *http.Request) (analyzeRequest, *council.Attachment, error) {
	var body analyzeRequest

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return body, nil, errors.New("invalid JSON body")
		}
		return body, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAttachmentBytes+maxFormMemory)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return body, nil, errTooLarge
		}
		return body, nil, errors.New("invalid form body")
	}
	body.Text = r.FormValue("text")
	body.Mode = r.FormValue("mode")

	att, err := readFile(r)
	return body, att, err
}

func readFile(r *http.Request) (*council.Attachment, error) {
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

	data, err := io.ReadAll(io.LimitReader(f, MaxAttachmentBytes+1))
	if err != nil {
		return nil, errors.New("invalid file upload")
	}
	if len(data) > MaxAttachmentBytes {
		return nil, errTooLarge
	}
	return &council.Attachment{
		Name:        hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
