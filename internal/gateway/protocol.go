package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// StreamChunk is one piece of a streamed chat response. Content chunks
// have Done false; the terminal chunk has Done true and, when the turn
// failed after streaming began, a non-empty Error.
type StreamChunk struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// doneSentinel is the final line of every stream, after the terminal chunk.
const doneSentinel = "[DONE]"

// writeChunk encodes a chunk as a single "data: {...}" line and flushes.
func writeChunk(w io.Writer, f flusher, chunk StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	f.Flush()
	return nil
}

// writeDone emits the stream-end sentinel line.
func writeDone(w io.Writer, f flusher) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", doneSentinel); err != nil {
		return err
	}
	f.Flush()
	return nil
}

type flusher interface {
	Flush()
}

// nopFlusher is used when the ResponseWriter does not support flushing.
type nopFlusher struct{}

func (nopFlusher) Flush() {}

// DecodeStream reads a complete "data:" line stream and returns the
// decoded chunks, stopping at the sentinel. Lines that are not valid
// chunk JSON are surfaced as plain content rather than treated as a
// protocol failure.
func DecodeStream(r io.Reader) ([]StreamChunk, error) {
	var chunks []StreamChunk
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if payload == doneSentinel {
			return chunks, nil
		}
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			chunks = append(chunks, StreamChunk{Content: payload})
			continue
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return chunks, err
	}
	return chunks, io.ErrUnexpectedEOF
}
