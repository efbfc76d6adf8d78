// Package llm defines the model client interface and the local-server
// providers behind it.
//
// The language model itself is an opaque remote service reached over HTTP
// (typically a local Ollama or OpenAI-compatible server); this package only
// knows how to send it a conversation and read back text, plain or
// streamed.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Message is a single turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a Complete or Stream call.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// CompletionResponse is the result of a non-streaming completion.
type CompletionResponse struct {
	Content  string        `json:"content"`
	Model    string        `json:"model,omitempty"`
	Usage    Usage         `json:"usage"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Usage tracks token consumption as reported by the provider.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// StreamEvent is a chunk from a streaming completion.
type StreamEvent struct {
	Type    string `json:"type"`              // "delta", "done", "error"
	Content string `json:"content,omitempty"` // text delta
	Error   string `json:"error,omitempty"`   // error message (type="error")

	// Final fields (type="done")
	Response *CompletionResponse `json:"response,omitempty"`
}

// Client is the interface all model providers implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream sends a request and returns a channel of streaming events.
	// The channel is closed after the terminal "done" or "error" event.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "ollama").
	Name() string
}

// ProviderError is returned when a model provider rejects a request.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status (429, 500, ...)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
