package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatClient talks to any server exposing the OpenAI chat
// completions API: llama.cpp, vLLM, LM Studio, LocalAI and friends.
type OpenAICompatClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAICompatClient creates a client for an OpenAI-compatible server.
// baseURL should include any path prefix up to but not including /v1.
func NewOpenAICompatClient(baseURL, apiKey, model string) *OpenAICompatClient {
	return &OpenAICompatClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
	}
}

// Name returns the provider name.
func (c *OpenAICompatClient) Name() string { return "openai-compat" }

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAICompatClient) buildRequest(req CompletionRequest, stream bool) openAIChatRequest {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)
	return openAIChatRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (c *OpenAICompatClient) post(ctx context.Context, body openAIChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{
			Provider: "openai-compat",
			Message:  strings.TrimSpace(string(msg)),
			Code:     resp.StatusCode,
		}
	}
	return resp, nil
}

// Complete sends a non-streaming chat completion request.
func (c *OpenAICompatClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai-compat", Message: "response contained no choices"}
	}

	return &CompletionResponse{
		Content: result.Choices[0].Message.Content,
		Model:   c.model,
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streaming request and parses the SSE response: each
// "data: " line carries a JSON chunk, terminated by "data: [DONE]".
func (c *OpenAICompatClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := c.post(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go c.readStream(ctx, resp, events)
	return events, nil
}

func (c *OpenAICompatClient) readStream(ctx context.Context, resp *http.Response, events chan<- StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	var full strings.Builder
	sawDone := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			sawDone = true
			break
		}

		var chunk openAIChatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			full.WriteString(delta)
			select {
			case events <- StreamEvent{Type: "delta", Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}

	var terminal StreamEvent
	switch {
	case scanner.Err() != nil:
		terminal = StreamEvent{Type: "error", Error: fmt.Sprintf("reading stream: %v", scanner.Err())}
	case !sawDone:
		terminal = StreamEvent{Type: "error", Error: "stream ended without [DONE] sentinel"}
	default:
		terminal = StreamEvent{
			Type: "done",
			Response: &CompletionResponse{
				Content: full.String(),
				Model:   c.model,
			},
		}
	}
	select {
	case events <- terminal:
	case <-ctx.Done():
	}
}
