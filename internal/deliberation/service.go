package deliberation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/boardroom/internal/consensus"
	"github.com/linnemanlabs/boardroom/internal/council"
)

// MinTextLength is the shortest decision text, after trimming, the service
// will convene a council for.
const MinTextLength = 10

// Errors returned by Service.Analyze for bad input.
var (
	ErrTextTooShort = errors.New("decision text must be at least 10 characters")
	ErrInvalidMode  = errors.New("mode must be enterprise or startup")
)

// Sources reported to ServiceHooks.OnAnalysis.
const (
	SourceCache   = "cache"
	SourceStore   = "store"
	SourceCouncil = "council"
)

// Request is one decision submitted for analysis. Document is the extracted
// text of an attached file, if any.
type Request struct {
	Text     string
	Mode     council.Mode
	Document string
}

// Council produces agent verdicts and news context. *Engine implements it.
type Council interface {
	Convene(ctx context.Context, text string, mode council.Mode, document string) []council.AgentAnalysis
	News(ctx context.Context, text string, verdict council.Verdict) *council.News
}

// ServiceHooks are optional callbacks for instrumentation.
type ServiceHooks struct {
	OnAnalysis func(source string, verdict council.Verdict, duration float64)
	OnNotify   func(err error)
}

// ServiceOptions configures optional collaborators of a Service.
type ServiceOptions struct {
	Cache        *Cache
	Notifier     Notifier
	HistoryLimit int
	Hooks        ServiceHooks
	Now          func() time.Time
}

// Service is the business boundary for decision analysis.
type Service struct {
	store    Store
	council  Council
	logger   log.Logger
	cache    *Cache
	notifier Notifier
	limit    int
	hooks    ServiceHooks
	now      func() time.Time
}

// NewService creates a new analysis service.
func NewService(store Store, c Council, logger log.Logger, opts ServiceOptions) *Service {
	if store == nil {
		panic(xerrors.New("deliberation.NewService: store is required"))
	}
	if c == nil {
		panic(xerrors.New("deliberation.NewService: council is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		council:  c,
		logger:   logger,
		cache:    opts.Cache,
		notifier: opts.Notifier,
		limit:    opts.HistoryLimit,
		hooks:    opts.Hooks,
		now:      opts.Now,
	}
}

// Analyze convenes the council for a decision and records the result.
// A decision already analyzed in the same mode is answered from the cache or
// the store without asking any model, whether or not a document is attached.
func (s *Service) Analyze(ctx context.Context, req Request) (*council.AnalysisResult, error) {
	start := s.now()
	if len(strings.TrimSpace(req.Text)) < MinTextLength {
		return nil, ErrTextTooShort
	}
	mode, ok := council.ParseMode(string(req.Mode))
	if !ok {
		return nil, ErrInvalidMode
	}

	L := s.logger.With("mode", mode)

	if s.cache != nil {
		if r, ok := s.cache.Get(req.Text, mode); ok {
			L.Info(ctx, "analysis served from cache", "analysis_id", r.ID)
			s.analyzed(SourceCache, r.FinalVerdict, start)
			return r, nil
		}
	}

	if r, ok, err := s.store.FindByDecision(ctx, req.Text, mode); err != nil {
		L.Warn(ctx, "history lookup failed", "error", err)
	} else if ok {
		L.Info(ctx, "analysis served from history", "analysis_id", r.ID)
		if s.cache != nil {
			s.cache.Set(r)
		}
		s.analyzed(SourceStore, r.FinalVerdict, start)
		return r, nil
	}

	analyses := s.council.Convene(ctx, req.Text, mode, req.Document)
	d := consensus.Decide(analyses)
	news := s.council.News(ctx, req.Text, d.Verdict)

	result := &council.AnalysisResult{
		ID:                ulid.Make().String(),
		DecisionText:      req.Text,
		FinalVerdict:      d.Verdict,
		AverageConfidence: d.AverageConfidence,
		Explanation:       d.Explanation,
		AgentAnalyses:     analyses,
		News:              news,
		Mode:              mode,
		Timestamp:         s.now().UTC().Format(time.RFC3339),
	}

	if err := s.store.Put(ctx, result); err != nil {
		L.Error(ctx, err, "failed to persist analysis", "analysis_id", result.ID)
	}
	if s.cache != nil {
		s.cache.Set(result)
	}

	L.Info(ctx, "council adjourned",
		"analysis_id", result.ID,
		"verdict", result.FinalVerdict,
		"confidence", result.AverageConfidence,
		"agreement", d.Agreement,
		"document", req.Document != "",
	)
	s.analyzed(SourceCouncil, result.FinalVerdict, start)

	if s.notifier != nil {
		go s.notify(context.WithoutCancel(ctx), result.Clone())
	}

	return result, nil
}

// History returns the retained analyses, oldest first.
func (s *Service) History(ctx context.Context) ([]*council.AnalysisResult, error) {
	return s.store.List(ctx, s.limit)
}

func (s *Service) notify(ctx context.Context, r *council.AnalysisResult) {
	err := s.notifier.Send(ctx, r)
	if err != nil {
		s.logger.Error(ctx, err, "failed to send notification", "analysis_id", r.ID)
	}
	if s.hooks.OnNotify != nil {
		s.hooks.OnNotify(err)
	}
}

func (s *Service) analyzed(source string, verdict council.Verdict, start time.Time) {
	if s.hooks.OnAnalysis != nil {
		s.hooks.OnAnalysis(source, verdict, s.now().Sub(start).Seconds())
	}
}
