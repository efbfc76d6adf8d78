package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/llm"
	"github.com/soyeahso/parley/internal/version"
)

// registerRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /v1/chat/ws", s.handleWebSocket)
	mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleSessionDelete)

	mux.HandleFunc("/", handleNotFound)
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptimeSeconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Uptime:  int64(time.Since(s.startedAt).Seconds()),
	})
}

// ChatRequest is the inbound payload for both chat endpoints.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ChatResponse is the synchronous chat result.
type ChatResponse struct {
	Response   string    `json:"response"`
	SessionID  string    `json:"sessionId"`
	Model      string    `json:"model,omitempty"`
	Usage      llm.Usage `json:"usage"`
	DurationMs int64     `json:"durationMs"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), turnTimeout)
	defer cancel()

	result, err := s.runner.Run(ctx, req.SessionID, req.Message)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:   result.Response,
		SessionID:  result.SessionID,
		Model:      result.Model,
		Usage:      result.Usage,
		DurationMs: result.Duration.Milliseconds(),
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	f, ok := w.(http.Flusher)
	var fl flusher = nopFlusher{}
	if ok {
		fl = f
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), turnTimeout)
	defer cancel()

	// Once the first chunk is written the status line is committed, so
	// later failures surface as a terminal error chunk, not a status code.
	started := false
	_, err := s.runner.RunStream(ctx, req.SessionID, req.Message, func(evt llm.StreamEvent) {
		switch evt.Type {
		case "delta":
			started = true
			writeChunk(w, fl, StreamChunk{Content: evt.Content})
		}
	})

	if err != nil {
		if !started {
			s.writeTurnError(w, err)
			return
		}
		writeChunk(w, fl, StreamChunk{Done: true, Error: err.Error()})
		writeDone(w, fl)
		return
	}

	writeChunk(w, fl, StreamChunk{Done: true})
	writeDone(w, fl)
}

// HistoryEntry is one persisted message in a session's history.
type HistoryEntry struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	msgs, err := s.runner.History(r.Context(), sessionID)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, HistoryEntry{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  entries,
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	existed, err := s.runner.DeleteSession(r.Context(), sessionID)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "deleted": true})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// writeTurnError maps domain errors to HTTP status codes.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	var capErr *domain.CapacityError
	var provErr *llm.ProviderError

	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &capErr):
		writeError(w, http.StatusUnprocessableEntity, capErr.Error())
	case domain.IsRetryable(err):
		s.log.Error().Err(err).Msg("upstream unavailable")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &provErr):
		s.log.Error().Err(err).Msg("model provider rejected request")
		writeError(w, http.StatusBadGateway, provErr.Error())
	default:
		s.log.Error().Err(err).Msg("chat turn failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
