// Package agent orchestrates one conversational turn end to end: load
// session memory, call the model, run requested tools, and persist the
// completed turn.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/llm"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/memory"
	"github.com/soyeahso/parley/internal/session"
)

var errStreamClosed = errors.New("stream closed before terminal chunk")

// Config configures the agent runner.
type Config struct {
	AgentName   string
	Model       string
	MaxTokens   int
	Temperature *float64
	ExtraPrompt string

	// MaxToolIterations caps the tool-call loop; 0 means the default of 5.
	MaxToolIterations int

	// ModelTimeout bounds a single model call, including the whole stream.
	ModelTimeout time.Duration

	// StoreTimeout bounds session store calls, deliberately much shorter
	// than the model timeout.
	StoreTimeout time.Duration

	// ToolTimeout bounds a single tool execution.
	ToolTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxToolIterations == 0 {
		c.MaxToolIterations = 5
	}
	if c.ModelTimeout == 0 {
		c.ModelTimeout = 2 * time.Minute
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = 30 * time.Second
	}
	return c
}

// RunResult is the outcome of processing one turn.
type RunResult struct {
	Response  string        `json:"response"`
	SessionID string        `json:"sessionId"`
	Model     string        `json:"model,omitempty"`
	Usage     llm.Usage     `json:"usage"`
	Duration  time.Duration `json:"duration"`
}

// Runner executes turns against the model, backed by the session store.
// Turns for the same session are serialized: the per-session lock is held
// from memory load through save.
type Runner struct {
	cfg      Config
	registry *llm.Registry
	store    session.Store
	tools    *ToolRegistry
	locks    *sessionLocks
	log      *logging.Logger
}

// NewRunner creates an agent runner.
func NewRunner(cfg Config, registry *llm.Registry, store session.Store, tools *ToolRegistry, log *logging.Logger) *Runner {
	return &Runner{
		cfg:      cfg.withDefaults(),
		registry: registry,
		store:    store,
		tools:    tools,
		locks:    newSessionLocks(),
		log:      log.Sub("agent"),
	}
}

// Run processes one turn synchronously and returns the full response.
func (r *Runner) Run(ctx context.Context, sessionID, input string) (*RunResult, error) {
	return r.run(ctx, sessionID, input, nil)
}

// RunStream processes one turn with incremental output via cb. The
// returned result carries the complete response text; memory is persisted
// only once the full turn is known-complete.
func (r *Runner) RunStream(ctx context.Context, sessionID, input string, cb StreamCallback) (*RunResult, error) {
	return r.run(ctx, sessionID, input, cb)
}

// History returns the persisted messages for a session without running a
// turn.
func (r *Runner) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	sctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	conv, err := r.store.Load(sctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conv.Messages(), nil
}

// DeleteSession removes a session's history, reporting whether it existed.
func (r *Runner) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if err := session.ValidateSessionID(sessionID); err != nil {
		return false, err
	}
	sctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	return r.store.Delete(sctx, sessionID)
}

func (r *Runner) run(ctx context.Context, sessionID, input string, cb StreamCallback) (*RunResult, error) {
	start := time.Now()

	if err := session.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input) == "" {
		return nil, &domain.ValidationError{Field: "message", Message: "must not be empty"}
	}

	client, err := r.registry.Resolve(r.cfg.Model)
	if err != nil {
		return nil, err
	}

	unlock := r.locks.lock(sessionID)
	defer unlock()

	conv, err := r.loadConversation(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	log := r.log.WithSession(sessionID)
	log.Info().Int("historyLen", conv.Len()).Bool("stream", cb != nil).Msg("processing turn")

	conv.Add(domain.RoleUser, input, nil)

	system := BuildSystemPrompt(PromptConfig{
		AgentName:   r.cfg.AgentName,
		Model:       r.cfg.Model,
		Tools:       r.tools.Definitions(),
		ExtraPrompt: r.cfg.ExtraPrompt,
	})

	var finalResp *llm.CompletionResponse
	var finalText string
	completed := false

	for i := 0; i < r.cfg.MaxToolIterations; i++ {
		req := llm.CompletionRequest{
			Model:       r.cfg.Model,
			System:      system,
			Messages:    historyMessages(conv),
			MaxTokens:   r.cfg.MaxTokens,
			Temperature: r.cfg.Temperature,
			Stream:      cb != nil,
		}

		text, resp, err := r.callModel(ctx, client, req, cb)
		if err != nil {
			// Nothing from this turn is persisted: a partial stream must
			// never leave a half-written assistant message behind.
			return nil, err
		}
		finalText, finalResp = text, resp

		calls := parseToolCalls(text)
		if len(calls) == 0 {
			completed = true
			break
		}

		log.Info().Int("toolCalls", len(calls)).Msg("executing tool calls")
		if cb != nil {
			cb(llm.StreamEvent{
				Type:    "tool_start",
				Content: fmt.Sprintf("Executing %d tool(s)...", len(calls)),
			})
		}

		conv.Add(domain.RoleAssistant, text, map[string]string{
			"toolCalls": strconv.Itoa(len(calls)),
		})
		r.executeToolCalls(ctx, conv, calls, cb)
	}

	if !completed {
		return nil, r.failCapacity(ctx, conv, cb, log)
	}

	clean := stripToolCalls(finalText)
	conv.Add(domain.RoleAssistant, clean, nil)

	if err := r.saveConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	result := &RunResult{
		Response:  clean,
		SessionID: sessionID,
		Model:     r.cfg.Model,
		Duration:  time.Since(start),
	}
	if finalResp != nil {
		result.Usage = finalResp.Usage
		if finalResp.Model != "" {
			result.Model = finalResp.Model
		}
	}

	if cb != nil {
		cb(llm.StreamEvent{Type: "done", Response: &llm.CompletionResponse{
			Content: clean,
			Model:   result.Model,
			Usage:   result.Usage,
		}})
	}

	log.Info().
		Str("model", result.Model).
		Int("outputTokens", result.Usage.OutputTokens).
		Dur("duration", result.Duration).
		Msg("turn complete")

	return result, nil
}

// failCapacity handles a tool loop that never produced a final answer.
// Everything the model said so far is already recorded in the
// conversation, so it is persisted rather than discarded before the turn
// fails.
func (r *Runner) failCapacity(ctx context.Context, conv *memory.Conversation, cb StreamCallback, log *logging.Logger) error {
	capErr := &domain.CapacityError{Limit: r.cfg.MaxToolIterations}
	log.Warn().Int("limit", r.cfg.MaxToolIterations).Msg("tool call loop hit iteration limit")

	if err := r.saveConversation(ctx, conv); err != nil {
		log.Error().Err(err).Msg("saving partial turn after tool loop limit")
	}
	if cb != nil {
		cb(llm.StreamEvent{Type: "error", Error: capErr.Error()})
	}
	return capErr
}

// callModel performs a single model round, streaming if cb is set.
func (r *Runner) callModel(ctx context.Context, client llm.Client, req llm.CompletionRequest, cb StreamCallback) (string, *llm.CompletionResponse, error) {
	mctx, cancel := context.WithTimeout(ctx, r.cfg.ModelTimeout)
	defer cancel()

	if cb == nil {
		resp, err := client.Complete(mctx, req)
		if err != nil {
			return "", nil, classifyModelError(err)
		}
		return resp.Content, resp, nil
	}

	events, err := client.Stream(mctx, req)
	if err != nil {
		return "", nil, classifyModelError(err)
	}

	coord := newStreamCoordinator(cb)
	resp, err := coord.collect(mctx, events)
	if err != nil {
		return "", nil, err
	}

	text := coord.Text()
	if resp != nil && resp.Content != "" {
		text = resp.Content
	}
	return text, resp, nil
}

// classifyModelError wraps transport-level failures as retryable
// connectivity errors; provider rejections pass through unchanged.
func classifyModelError(err error) error {
	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		return err
	}
	return &domain.ConnectivityError{Service: "model", Err: err}
}

func (r *Runner) loadConversation(ctx context.Context, sessionID string) (*memory.Conversation, error) {
	sctx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	return r.store.Load(sctx, sessionID)
}

func (r *Runner) saveConversation(ctx context.Context, conv *memory.Conversation) error {
	// Save still proceeds when the caller's context just expired: the turn
	// is complete and dropping it now would lose the user's exchange.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StoreTimeout)
	defer cancel()
	return r.store.Save(sctx, conv)
}

// historyMessages projects the conversation into the model wire format.
func historyMessages(conv *memory.Conversation) []llm.Message {
	msgs := conv.Messages()
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// toolCall is a parsed tool invocation from the model response.
type toolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// toolCallRe matches ```tool_call\n{...}\n``` blocks in model output.
var toolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\n(\\{.*?\\})\n\\s*```")

// whitespaceLineRe matches lines containing only horizontal whitespace.
var whitespaceLineRe = regexp.MustCompile(`(?m)^[ \t]+$`)

// blankLineCollapseRe collapses 3+ consecutive newlines to a single blank line.
var blankLineCollapseRe = regexp.MustCompile(`\n{3,}`)

// parseToolCalls extracts tool_call blocks from model response text.
func parseToolCalls(text string) []toolCall {
	matches := toolCallRe.FindAllStringSubmatch(text, -1)
	var calls []toolCall
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		var tc toolCall
		if err := json.Unmarshal([]byte(match[1]), &tc); err != nil {
			continue
		}
		if tc.Tool != "" {
			calls = append(calls, tc)
		}
	}
	return calls
}

// executeToolCalls runs each requested tool and records every result as a
// tool-role message so the model can see it on the next round. A failing
// tool does not abort the turn; its error becomes the tool message body.
func (r *Runner) executeToolCalls(ctx context.Context, conv *memory.Conversation, calls []toolCall, cb StreamCallback) {
	for _, tc := range calls {
		output, err := r.executeTool(ctx, tc)

		md := map[string]string{"tool": tc.Tool}
		content := output
		if err != nil {
			md["error"] = "true"
			content = fmt.Sprintf("Error: %s", err)
			r.log.Warn().Str("tool", tc.Tool).Err(err).Msg("tool execution failed")
			if cb != nil {
				cb(llm.StreamEvent{
					Type:    "tool_error",
					Content: fmt.Sprintf("Tool %s failed: %v", tc.Tool, err),
				})
			}
		} else if cb != nil {
			cb(llm.StreamEvent{
				Type:    "tool_result",
				Content: fmt.Sprintf("Tool %s completed", tc.Tool),
			})
		}

		conv.Add(domain.RoleTool, content, md)
	}
}

func (r *Runner) executeTool(ctx context.Context, tc toolCall) (string, error) {
	tool, ok := r.tools.Get(tc.Tool)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", tc.Tool)
	}

	r.log.Debug().Str("tool", tc.Tool).Msg("executing tool")
	tctx, cancel := context.WithTimeout(ctx, r.cfg.ToolTimeout)
	defer cancel()
	return tool.Execute(tctx, string(tc.Input))
}

// stripToolCalls removes tool_call blocks from the response, leaving the
// surrounding text for user-facing output.
func stripToolCalls(text string) string {
	cleaned := toolCallRe.ReplaceAllString(text, "\n\n")
	cleaned = whitespaceLineRe.ReplaceAllString(cleaned, "")
	cleaned = blankLineCollapseRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
