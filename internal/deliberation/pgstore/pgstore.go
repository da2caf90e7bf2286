// Package pgstore provides a PostgreSQL implementation of deliberation.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/boardroom/internal/council"
	"github.com/linnemanlabs/boardroom/internal/deliberation"
)

var tracer = otel.Tracer("github.com/linnemanlabs/boardroom/internal/deliberation/pgstore")

//go:embed schema.sql
var schema string

// Store persists analysis results in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const analysisColumns = `id, decision_text, mode, final_verdict, average_confidence,
	explanation, agent_analyses, news, analyzed_at`

// Put inserts an analysis, replacing any row with the same ID.
func (s *Store) Put(ctx context.Context, r *council.AnalysisResult) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()

	agentsJSON, err := json.Marshal(r.AgentAnalyses)
	if err != nil {
		return fail(span, fmt.Errorf("marshal agent analyses: %w", err))
	}
	var newsJSON []byte
	if r.News != nil {
		if newsJSON, err = json.Marshal(r.News); err != nil {
			return fail(span, fmt.Errorf("marshal news: %w", err))
		}
	}

	query := `INSERT INTO analyses (
		id, decision_text, decision_key, mode, final_verdict, average_confidence,
		explanation, agent_analyses, news, analyzed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (id) DO UPDATE SET
		decision_text      = EXCLUDED.decision_text,
		decision_key       = EXCLUDED.decision_key,
		mode               = EXCLUDED.mode,
		final_verdict      = EXCLUDED.final_verdict,
		average_confidence = EXCLUDED.average_confidence,
		explanation        = EXCLUDED.explanation,
		agent_analyses     = EXCLUDED.agent_analyses,
		news               = EXCLUDED.news,
		analyzed_at        = EXCLUDED.analyzed_at`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.DecisionText, deliberation.NormalizeText(r.DecisionText), string(r.Mode),
		string(r.FinalVerdict), r.AverageConfidence, r.Explanation, agentsJSON, newsJSON, r.Timestamp,
	)
	if err != nil {
		return fail(span, fmt.Errorf("upsert analysis: %w", err))
	}
	return nil
}

// List returns the newest limit analyses, oldest first.
func (s *Store) List(ctx context.Context, limit int) ([]*council.AnalysisResult, error) {
	ctx, span := startSpan(ctx, "pgstore.List", "SELECT")
	defer span.End()

	if limit <= 0 {
		limit = deliberation.DefaultHistoryLimit
	}
	span.SetAttributes(attribute.Int("boardroom.history.limit", limit))

	rows, err := s.pool.Query(ctx,
		`SELECT `+analysisColumns+` FROM analyses ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query analyses: %w", err))
	}
	defer rows.Close()

	var out []*council.AnalysisResult
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, fail(span, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate analyses: %w", err))
	}

	slices.Reverse(out)
	return out, nil
}

// FindByDecision returns the newest analysis with the same normalized text
// and mode.
func (s *Store) FindByDecision(ctx context.Context, text string, mode council.Mode) (*council.AnalysisResult, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.FindByDecision", "SELECT")
	defer span.End()

	row := s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analyses
		 WHERE decision_key = $1 AND mode = $2
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		deliberation.NormalizeText(text), string(mode),
	)
	r, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fail(span, err)
	}
	return r, true, nil
}

func scanAnalysis(row pgx.Row) (*council.AnalysisResult, error) {
	var (
		r          council.AnalysisResult
		mode       string
		verdict    string
		agentsJSON []byte
		newsJSON   []byte
	)
	err := row.Scan(&r.ID, &r.DecisionText, &mode, &verdict, &r.AverageConfidence,
		&r.Explanation, &agentsJSON, &newsJSON, &r.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	r.Mode = council.Mode(mode)
	r.FinalVerdict = council.Verdict(verdict)

	if err := json.Unmarshal(agentsJSON, &r.AgentAnalyses); err != nil {
		return nil, fmt.Errorf("unmarshal agent analyses %s: %w", r.ID, err)
	}
	if len(newsJSON) > 0 {
		r.News = &council.News{}
		if err := json.Unmarshal(newsJSON, r.News); err != nil {
			return nil, fmt.Errorf("unmarshal news %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
