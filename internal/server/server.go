// Package server exposes the sale and policy services over HTTP and
// WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/server/handler"
	"github.com/hyades-labs/tokengate/internal/server/middleware"
	"github.com/hyades-labs/tokengate/internal/server/ws"
)

// apiRateLimit caps requests per client IP per second when a limiter is
// configured.
const (
	apiRateLimit  = 25
	apiRateWindow = time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Sales     *handler.SaleHandler
	Policies  *handler.PolicyHandler
	Transfers *handler.TransferHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. Pass a nil limiter to skip API rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required at the handler level; the auth
	// middleware still applies to the whole chain).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Sale endpoints.
	mux.HandleFunc("POST /api/sales", handlers.Sales.CreateSale)
	mux.HandleFunc("GET /api/sales/{asset}", handlers.Sales.GetSale)
	mux.HandleFunc("POST /api/sales/{asset}/purchase", handlers.Sales.Purchase)
	mux.HandleFunc("GET /api/sales/{asset}/receipts", handlers.Sales.ListReceipts)

	// Policy endpoints.
	mux.HandleFunc("POST /api/policies", handlers.Policies.InitializePolicy)
	mux.HandleFunc("GET /api/policies/{asset}", handlers.Policies.GetPolicy)
	mux.HandleFunc("PUT /api/policies/{asset}", handlers.Policies.UpdateFlags)
	mux.HandleFunc("GET /api/policies/{asset}/whitelist", handlers.Policies.ListWhitelist)
	mux.HandleFunc("POST /api/policies/{asset}/whitelist/{wallet}", handlers.Policies.Grant)
	mux.HandleFunc("DELETE /api/policies/{asset}/whitelist/{wallet}", handlers.Policies.Revoke)
	mux.HandleFunc("POST /api/policies/{asset}/check", handlers.Policies.Check)

	// Governed transfer endpoint.
	mux.HandleFunc("POST /api/transfers", handlers.Transfers.Transfer)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil {
		h = middleware.RateLimit(limiter, apiRateLimit, apiRateWindow)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Handler returns the server's root handler with the full middleware chain
// applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
