// Package api exposes the shopping assistant over HTTP: a single chat
// endpoint behind the storefront's middleware stack, plus health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Loop        chatRunner    // Required: orchestration entry point
	Pool        *pgxpool.Pool // Optional: nil degrades /ready to liveness
	CORSOrigins []string      // Allowed origins for CORS
	IsDev       bool          // Enables HTTP cookies (no Secure flag)
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	IPRateBurst int           // Per-IP token bucket burst (0 = default 60)
	ChatLimit   int           // Chat messages per visitor per window (0 = default 20)
	ChatWindow  time.Duration // Chat budget window (0 = default 60s)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Loop == nil {
		return nil, errors.New("orchestration loop is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	chatLimit := cfg.ChatLimit
	if chatLimit <= 0 {
		chatLimit = 20
	}
	chatWindow := cfg.ChatWindow
	if chatWindow <= 0 {
		chatWindow = time.Minute
	}

	ch := &chatHandler{
		loop:    cfg.Loop,
		limiter: newChatLimiter(chatLimit, chatWindow),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.send)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.IPRateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newIPRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → User → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers.
	var handler http.Handler = mux
	handler = userMiddleware(cfg.IsDev)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health)
	topMux.Handle("GET /readyz", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
