// Package slack posts board verdicts to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/boardroom/internal/consensus"
	"github.com/linnemanlabs/boardroom/internal/council"
)

const (
	maxAnalysisLen = 3000
	httpTimeout    = 10 * time.Second
)

// Notifier sends analysis results to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Send posts an analysis result to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, result *council.AnalysisResult) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(result))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack notification sent", "analysis_id", result.ID, "verdict", result.FinalVerdict)
	return nil
}

func buildMessage(r *council.AnalysisResult) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			analysisBlock(r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *council.AnalysisResult) map[string]any {
	verdict := r.FinalVerdict
	if verdict == "" {
		verdict = council.Reject
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": fmt.Sprintf("%s Board Verdict: %s", verdictEmoji(r.FinalVerdict), verdict),
		},
	}
}

func fieldsBlock(r *council.AnalysisResult) map[string]any {
	s := consensus.Tally(r.AgentAnalyses)
	mode := r.Mode
	if mode == "" {
		mode = council.ModeEnterprise
	}

	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Mode:* %s", mode)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Avg confidence:* %d%%", r.AverageConfidence)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Approve:* %d of %d", s.Approvals, s.Total)},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Against:* %d", s.Rejections)},
	}
	for _, a := range r.AgentAnalyses {
		a = a.WithDefaults()
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*%s:* %s (%d%%)", a.AgentRole, a.Verdict, a.Confidence),
		})
	}
	// Slack rejects sections with more than ten fields.
	if len(fields) > 10 {
		fields = fields[:10]
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func analysisBlock(r *council.AnalysisResult) map[string]any {
	explanation := r.Explanation
	if strings.TrimSpace(explanation) == "" {
		explanation = "_" + council.DefaultExplanation + "_"
	}
	text := truncate(fmt.Sprintf("> %s\n\n%s", oneLine(r.DecisionText), explanation), maxAnalysisLen)

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Decision*\n\n%s", text),
		},
	}
}

func contextBlock(r *council.AnalysisResult) map[string]any {
	ts := r.Timestamp
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		ts = t.UTC().Format("2006-01-02 15:04 UTC")
	}

	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("boardroom • analysis %s • %s", r.ID, ts),
			},
		},
	}
}

func verdictEmoji(v council.Verdict) string {
	switch v {
	case council.Approve:
		return "\U0001f7e2" // green circle
	case council.Conditional:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f534" // red circle
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
