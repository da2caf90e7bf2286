package deliberation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/roster"
)

const (
	// UnavailableAssumption is attached to the synthetic verdict of an agent
	// whose primary and fallback models both failed.
	UnavailableAssumption = "AI Provider services are currently unavailable"

	// NewsUnavailable explains an empty news context.
	NewsUnavailable = "Could not connect to AI providers to fetch relevant news."

	maxAttempts          = 3
	defaultRetryInterval = 2 * time.Second
	instrumentationName  = "github.com/linnemanlabs/boardroom/internal/deliberation"
)

// Agent outcomes reported to EngineHooks.OnAgent.
const (
	AgentPrimary  = "primary"
	AgentFallback = "fallback"
	AgentFailed   = "failed"
)

const answerFormat = `Answer with a single JSON object and nothing else:
{"verdict": "Approve" | "Reject" | "Conditional", "confidence": <integer 0-100>, "reasoning": "<one paragraph>", "assumptions": ["<assumption>", ...]}`

const newsPrompt = `You are NewsGPT. You find real-world news that puts a board decision in context.

If the verdict is Approve or Conditional, find historical news where similar decisions succeeded.
If the verdict is Reject, find cases where similar decisions failed or backfired.

Answer with a single JSON object and nothing else:
{"articles": [{"headline": "...", "summary": "...", "source": "...", "date": "..."}], "explanation": "<one paragraph relating the articles to the decision>"}
Return 3 to 4 articles.`

// EngineHooks are optional callbacks for instrumentation.
type EngineHooks struct {
	OnLLMCall func(model string, inputTokens, outputTokens int, duration float64, err error)
	OnAgent   func(role council.Role, outcome string)
	OnRetry   func(model string)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLimiter bounds the rate of provider calls across all agents.
func WithLimiter(l *rate.Limiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// WithRetryInterval sets the first backoff wait after an overloaded
// provider; later waits double.
func WithRetryInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.retryInterval = d }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) { e.tracer = tp.Tracer(instrumentationName) }
}

// Engine asks every seated role for a verdict and produces news context.
type Engine struct {
	provider      Provider
	roster        *roster.Roster
	logger        log.Logger
	hooks         EngineHooks
	limiter       *rate.Limiter
	retryInterval time.Duration
	tracer        trace.Tracer
}

// NewEngine creates a council engine.
func NewEngine(provider Provider, r *roster.Roster, logger log.Logger, hooks EngineHooks, opts ...EngineOption) *Engine {
	if provider == nil {
		panic(xerrors.New("deliberation.NewEngine: provider is required"))
	}
	if r == nil {
		panic(xerrors.New("deliberation.NewEngine: roster is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	e := &Engine{
		provider:      provider,
		roster:        r,
		logger:        logger,
		hooks:         hooks,
		retryInterval: defaultRetryInterval,
		tracer:        otel.Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Convene runs every agent concurrently and returns their analyses in roster
// order. An agent never fails the council: a double provider failure yields
// a zero-confidence rejection explaining the error.
func (e *Engine) Convene(ctx context.Context, text string, mode council.Mode, document string) []council.AgentAnalysis {
	ctx, span := e.tracer.Start(ctx, "deliberation.Convene", trace.WithAttributes(
		attribute.String("boardroom.mode", string(mode)),
		attribute.Int("boardroom.council.size", len(e.roster.Agents)),
		attribute.Bool("boardroom.decision.document", document != ""),
	))
	defer span.End()

	user := decisionPrompt(text, document)
	out := make([]council.AgentAnalysis, len(e.roster.Agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range e.roster.Agents {
		g.Go(func() error {
			out[i] = e.consult(gctx, agent, mode, user)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func decisionPrompt(text, document string) string {
	var b strings.Builder
	b.WriteString("Decision to analyze: ")
	b.WriteString(strings.TrimSpace(text))
	if document != "" {
		b.WriteString("\n\nSupporting document:\n")
		b.WriteString(document)
	}
	return b.String()
}

func (e *Engine) consult(ctx context.Context, agent roster.Agent, mode council.Mode, user string) council.AgentAnalysis {
	ctx, span := e.tracer.Start(ctx, "deliberation.agent", trace.WithAttributes(
		attribute.String("boardroom.agent.role", string(agent.Role)),
		attribute.String("boardroom.agent.model", agent.Model),
	))
	defer span.End()

	L := e.logger.With("role", agent.Role, "mode", mode)
	system := agent.Prompt(mode) + "\n\n" + answerFormat

	a, err := e.ask(ctx, agent.Role, agent.Model, agent.MaxTokens, system, user)
	if err == nil {
		e.agentDone(agent.Role, AgentPrimary)
		return a
	}
	primaryErr := err
	L.Warn(ctx, "primary model failed", "model", agent.Model, "error", err)

	if agent.FallbackModel != "" {
		span.SetAttributes(attribute.String("boardroom.agent.fallback_model", agent.FallbackModel))
		a, err = e.ask(ctx, agent.Role, agent.FallbackModel, agent.MaxTokens, system, user)
		if err == nil {
			a.Reasoning = fmt.Sprintf("(FALLBACK: %s) %s", agent.FallbackModel, a.Reasoning)
			e.agentDone(agent.Role, AgentFallback)
			return a
		}
		L.Error(ctx, err, "fallback model failed", "model", agent.FallbackModel)
	}

	span.RecordError(primaryErr)
	span.SetStatus(codes.Error, primaryErr.Error())
	e.agentDone(agent.Role, AgentFailed)
	return council.AgentAnalysis{
		AgentRole:   agent.Role,
		Verdict:     council.Reject,
		Confidence:  0,
		Reasoning:   "Critical Error: " + primaryErr.Error(),
		Assumptions: []string{UnavailableAssumption},
	}
}

func (e *Engine) ask(ctx context.Context, role council.Role, model string, maxTokens int, system, user string) (council.AgentAnalysis, error) {
	resp, err := e.send(ctx, &LLMRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: user}}}},
	})
	if err != nil {
		return council.AgentAnalysis{}, err
	}
	return parseAgent(role, resp.Text())
}

// send calls the provider, retrying overloaded responses with exponential
// backoff.
func (e *Engine) send(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	op := func() (*LLMResponse, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}
		cctx, span := e.tracer.Start(ctx, "llm.call", trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "llm.call"),
			attribute.String("gen_ai.request.model", req.Model),
			attribute.Int("gen_ai.request.max_tokens", req.MaxTokens),
		))
		start := time.Now()
		resp, err := e.provider.Send(cctx, req)
		e.llmCall(req.Model, resp, time.Since(start).Seconds(), err)
		if resp != nil {
			span.SetAttributes(
				attribute.String("gen_ai.response.model", resp.Model),
				attribute.String("gen_ai.response.finish_reason", string(resp.StopReason)),
				attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
				attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			if errors.Is(err, ErrOverloaded) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.logger.Warn(ctx, "provider overloaded, retrying", "model", req.Model, "wait", wait, "error", err)
			if e.hooks.OnRetry != nil {
				e.hooks.OnRetry(req.Model)
			}
		}),
	)
}

// News finds real-world context for a decision. It never fails: when no
// model answers, the result carries no articles and an explanation saying so.
func (e *Engine) News(ctx context.Context, text string, verdict council.Verdict) *council.News {
	ctx, span := e.tracer.Start(ctx, "deliberation.News", trace.WithAttributes(
		attribute.String("boardroom.verdict", string(verdict)),
	))
	defer span.End()

	user := fmt.Sprintf("Decision: %s\nConsensus verdict: %s", strings.TrimSpace(text), verdict)
	models := []string{e.roster.News.Model}
	if fb := e.roster.News.FallbackModel; fb != "" && fb != e.roster.News.Model {
		models = append(models, fb)
	}

	for _, model := range models {
		resp, err := e.send(ctx, &LLMRequest{
			Model:     model,
			MaxTokens: e.roster.News.MaxTokens,
			System:    newsPrompt,
			Messages:  []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: user}}}},
		})
		if err == nil {
			var news *council.News
			news, err = parseNews(resp.Text())
			if err == nil {
				return news
			}
		}
		e.logger.Warn(ctx, "news model failed", "model", model, "error", err)
	}

	span.SetStatus(codes.Error, "no news model answered")
	return &council.News{Explanation: NewsUnavailable, Articles: []council.NewsArticle{}}
}

func (e *Engine) llmCall(model string, resp *LLMResponse, seconds float64, err error) {
	if e.hooks.OnLLMCall == nil {
		return
	}
	var in, out int
	if resp != nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
	}
	e.hooks.OnLLMCall(model, in, out, seconds, err)
}

func (e *Engine) agentDone(role council.Role, outcome string) {
	if e.hooks.OnAgent != nil {
		e.hooks.OnAgent(role, outcome)
	}
}
