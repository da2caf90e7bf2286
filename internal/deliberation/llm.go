package deliberation

import (
	"context"
	"errors"
)

// ErrOverloaded marks provider errors worth retrying: rate limits, quota
// exhaustion and temporary overload.
var ErrOverloaded = errors.New("llm provider overloaded")

// Provider is the interface for any LLM backend.
type Provider interface {
	Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is a single-shot completion request.
type LLMRequest struct {
	Model     string
	MaxTokens int
	System    string
	Messages  []Message
}

// LLMResponse is the provider's answer.
type LLMResponse struct {
	Model      string
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Text concatenates the text blocks of the response.
func (r *LLMResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopEnd       StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
