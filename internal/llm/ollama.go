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

// OllamaClient talks to a local Ollama server via its native chat API.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a client for the Ollama server at baseURL
// (default http://localhost:11434).
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		// Per-request deadlines come from the caller's context; the HTTP
		// client itself stays unbounded so long streams aren't cut off.
		client: &http.Client{},
	}
}

// Name returns the provider name.
func (o *OllamaClient) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (o *OllamaClient) buildRequest(req CompletionRequest, stream bool) ollamaChatRequest {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	out := ollamaChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   stream,
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		out.Options = map[string]any{}
		if req.Temperature != nil {
			out.Options["temperature"] = *req.Temperature
		}
		if req.MaxTokens > 0 {
			out.Options["num_predict"] = req.MaxTokens
		}
	}
	return out
}

func (o *OllamaClient) post(ctx context.Context, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{
			Provider: "ollama",
			Message:  strings.TrimSpace(string(msg)),
			Code:     resp.StatusCode,
		}
	}
	return resp, nil
}

// Complete sends a non-streaming chat request.
func (o *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := o.post(ctx, o.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &CompletionResponse{
		Content: result.Message.Content,
		Model:   o.model,
		Usage: Usage{
			InputTokens:  result.PromptEvalCount,
			OutputTokens: result.EvalCount,
		},
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streaming chat request. Ollama streams newline-delimited
// JSON objects, one content fragment per line, ending with done:true.
func (o *OllamaClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := o.post(ctx, o.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go o.readStream(ctx, resp, events)
	return events, nil
}

func (o *OllamaClient) readStream(ctx context.Context, resp *http.Response, events chan<- StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	var full strings.Builder
	usage := Usage{}
	sawDone := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}

		if chunk.Message.Content != "" {
			full.WriteString(chunk.Message.Content)
			select {
			case events <- StreamEvent{Type: "delta", Content: chunk.Message.Content}:
			case <-ctx.Done():
				return
			}
		}
		if chunk.Done {
			sawDone = true
			usage = Usage{InputTokens: chunk.PromptEvalCount, OutputTokens: chunk.EvalCount}
		}
	}

	var terminal StreamEvent
	switch {
	case scanner.Err() != nil:
		terminal = StreamEvent{Type: "error", Error: fmt.Sprintf("reading stream: %v", scanner.Err())}
	case !sawDone:
		terminal = StreamEvent{Type: "error", Error: "stream ended without terminal chunk"}
	default:
		terminal = StreamEvent{
			Type: "done",
			Response: &CompletionResponse{
				Content: full.String(),
				Model:   o.model,
				Usage:   usage,
			},
		}
	}
	select {
	case events <- terminal:
	case <-ctx.Done():
	}
}
