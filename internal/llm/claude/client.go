// Package claude implements deliberation.Provider on the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/boardroom/internal/deliberation"
)

const defaultTimeout = 120 * time.Second

// Client implements deliberation.Provider for the Claude API.
type Client struct {
	sdk anthropic.Client
}

// Option configures a Client.
type Option func(*settings)

type settings struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// New creates a Claude client. Retries are left to the caller.
func New(apiKey string, opts ...Option) *Client {
	s := settings{timeout: defaultTimeout}
	for _, o := range opts {
		o(&s)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{
			Timeout:   s.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}

	return &Client{sdk: anthropic.NewClient(reqOpts...)}
}

// Send performs a single Messages API call. Rate limiting and overload
// responses are reported as deliberation.ErrOverloaded.
func (c *Client) Send(ctx context.Context, req *deliberation.LLMRequest) (*deliberation.LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toSDKMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	return fromSDKResponse(msg), nil
}

func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, 529, http.StatusServiceUnavailable:
			return fmt.Errorf("claude api status %d: %w", apiErr.StatusCode, deliberation.ErrOverloaded)
		}
		return fmt.Errorf("claude api status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("claude api: %w", err)
}

func toSDKMessages(msgs []deliberation.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			if b.Type == "text" {
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			}
		}
		out = append(out, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(m.Role),
			Content: blocks,
		})
	}
	return out
}

func fromSDKResponse(msg *anthropic.Message) *deliberation.LLMResponse {
	out := &deliberation.LLMResponse{
		Model:      string(msg.Model),
		StopReason: deliberation.StopReason(msg.StopReason),
		Usage: deliberation.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, b := range msg.Content {
		if b.Type == "text" {
			out.Content = append(out.Content, deliberation.ContentBlock{Type: "text", Text: b.Text})
		}
	}
	return out
}
