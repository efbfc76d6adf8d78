package agent

import (
	"context"
	"strings"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/llm"
)

// StreamCallback receives streaming events during RunStream execution.
// Event types:
//   - "delta": incremental text (Content holds the fragment)
//   - "tool_start": tool execution is beginning
//   - "tool_result": a tool completed
//   - "tool_error": a tool failed
//   - "done": the turn finished (Response holds the full result)
//   - "error": the turn failed after streaming began
type StreamCallback func(event llm.StreamEvent)

// streamCoordinator drains one model stream, forwarding deltas to the
// callback in generation order while accumulating the full text. The
// accumulator, not any single chunk, is what eventually gets persisted:
// a chunk never represents the whole message.
//
// If the stream fails or the caller's context is canceled before the
// terminal event, collect returns an error and the caller must not save
// the turn. Deltas are forwarded synchronously, so by the time a tool
// boundary is reached every pending text chunk has already been emitted.
type streamCoordinator struct {
	cb   StreamCallback
	text strings.Builder
}

func newStreamCoordinator(cb StreamCallback) *streamCoordinator {
	return &streamCoordinator{cb: cb}
}

// Text returns everything accumulated so far.
func (s *streamCoordinator) Text() string { return s.text.String() }

// collect consumes events until the terminal "done" or "error" event, or
// until ctx is canceled. On success it returns the provider's final
// response (nil if the provider sent none).
func (s *streamCoordinator) collect(ctx context.Context, events <-chan llm.StreamEvent) (*llm.CompletionResponse, error) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				// Channel closed without a terminal event: the model side
				// went away mid-stream.
				return nil, &domain.ConnectivityError{
					Service: "model",
					Err:     errStreamClosed,
				}
			}
			switch evt.Type {
			case "delta":
				s.text.WriteString(evt.Content)
				if s.cb != nil {
					s.cb(evt)
				}
			case "done":
				return evt.Response, nil
			case "error":
				return nil, &domain.ConnectivityError{
					Service: "model",
					Err:     &llm.ProviderError{Provider: "stream", Message: evt.Error},
				}
			}
		case <-ctx.Done():
			// Caller disconnected or the model timeout fired. Stop pulling;
			// the provider goroutine observes the same context and releases
			// its connection.
			return nil, ctx.Err()
		}
	}
}
