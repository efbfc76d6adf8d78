// Package gateway exposes the agent runner over HTTP and WebSocket.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/parley/internal/agent"
	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/version"
)

// turnTimeout is the maximum duration for one chat turn, including all
// tool rounds.
const turnTimeout = 5 * time.Minute

// Server is the Parley gateway HTTP + WebSocket server.
type Server struct {
	cfg    config.ServerConfig
	runner *agent.Runner
	log    *logging.Logger

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a gateway server around the given runner.
func New(cfg config.ServerConfig, runner *agent.Runner, log *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		runner: runner,
		log:    log.Sub("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
}

// checkWebSocketOrigin validates WebSocket Origin headers. Requests
// without an Origin header (non-browser clients) are always allowed;
// browser requests must match a configured origin.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.ServerConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler builds the full HTTP handler with routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	h := http.Handler(mux)
	h = authMiddleware(h, s.cfg.Auth.Token)
	h = requestIDMiddleware(h)
	h = corsMiddleware(h, s.cfg.AllowedOrigins)
	h = loggingMiddleware(h, s.log)
	return h
}

// Start begins listening for connections. It blocks until the context is
// cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: streaming responses stay open for the whole turn.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Bind != "loopback" && s.cfg.Auth.Token == "" {
		s.log.Warn().Msg("binding beyond loopback without an auth token")
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("version", version.Version).
		Msg("gateway server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
