package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/parley/internal/llm"
)

// WSRequest is one chat turn sent by a WebSocket client.
type WSRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// WSEvent is one event pushed to a WebSocket client during a turn.
// Types: "delta", "tool_start", "tool_result", "tool_error", "done",
// "error".
type WSEvent struct {
	Type      string     `json:"type"`
	Content   string     `json:"content,omitempty"`
	Response  string     `json:"response,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Model     string     `json:"model,omitempty"`
	Usage     *llm.Usage `json:"usage,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// handleWebSocket upgrades the connection and serves chat turns until the
// client disconnects. Turns on one connection run sequentially.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("new websocket connection")

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Msg("websocket client closed connection")
			} else {
				s.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var req WSRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			conn.WriteJSON(WSEvent{Type: "error", Error: "invalid JSON payload"})
			continue
		}

		s.serveTurn(r.Context(), conn, req)
	}
}

// serveTurn runs one streamed turn and pushes its events to the client.
func (s *Server) serveTurn(ctx context.Context, conn *websocket.Conn, req WSRequest) {
	tctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	result, err := s.runner.RunStream(tctx, req.SessionID, req.Message, func(evt llm.StreamEvent) {
		switch evt.Type {
		case "delta", "tool_start", "tool_result", "tool_error":
			conn.WriteJSON(WSEvent{Type: evt.Type, Content: evt.Content})
		}
	})
	if err != nil {
		conn.WriteJSON(WSEvent{Type: "error", Error: err.Error()})
		return
	}

	conn.WriteJSON(WSEvent{
		Type:      "done",
		Response:  result.Response,
		SessionID: result.SessionID,
		Model:     result.Model,
		Usage:     &result.Usage,
	})
}
