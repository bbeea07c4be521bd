// Package server exposes the exchange over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/socialbet/internal/domain"
	"github.com/alanyoungcy/socialbet/internal/server/handler"
	"github.com/alanyoungcy/socialbet/internal/server/middleware"
	"github.com/alanyoungcy/socialbet/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AuthMaxSkew bounds how far a signed request's timestamp may drift.
	AuthMaxSkew time.Duration
	// RateLimit is the number of writes allowed per caller per RateWindow;
	// zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Admins   *handler.AdminHandler
	Events   *handler.EventHandler
	Offers   *handler.OfferHandler
	Bets     *handler.BetHandler
	Balances *handler.BalanceHandler
	Metadata *handler.MetadataHandler
	// Metrics serves the Prometheus exposition format; nil omits /metrics.
	Metrics http.Handler
}

// Server is the HTTP + WebSocket API server for the exchange.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps writes in request signature
// verification and rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	if cfg.AuthMaxSkew <= 0 {
		cfg.AuthMaxSkew = 5 * time.Minute
	}
	signed := middleware.SignatureAuth(cfg.AuthMaxSkew, time.Now)
	limited := middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)
	write := func(h http.HandlerFunc) http.Handler {
		return signed(limited(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	// Access control.
	mux.Handle("POST /api/admins", write(handlers.Admins.Add))
	mux.Handle("DELETE /api/admins/{address}", write(handlers.Admins.Remove))
	mux.HandleFunc("GET /api/admins/{address}", handlers.Admins.Get)

	// Events and results.
	mux.Handle("POST /api/events", write(handlers.Events.Add))
	mux.Handle("POST /api/events/bulk", write(handlers.Events.AddBulk))
	mux.Handle("POST /api/events/{id}/markets", write(handlers.Events.AddMarkets))
	mux.Handle("POST /api/events/cancel", write(handlers.Events.Cancel))
	mux.Handle("POST /api/events/{id}/result", write(handlers.Events.SetResult))
	mux.Handle("POST /api/events/result", write(handlers.Events.SetResultBulk))
	mux.HandleFunc("GET /api/events", handlers.Events.List)
	mux.HandleFunc("GET /api/events/{id}", handlers.Events.Get)
	mux.HandleFunc("GET /api/events/{id}/bets", handlers.Events.Bets)

	// Metadata documents are content addressed; storing one needs no caller.
	mux.Handle("PUT /api/metadata", limited(http.HandlerFunc(handlers.Metadata.Put)))
	mux.HandleFunc("GET /api/metadata/{cid}", handlers.Metadata.Get)
	mux.HandleFunc("GET /api/events/{id}/metadata", handlers.Metadata.ForEvent)

	// Offer book.
	mux.Handle("POST /api/offers", write(handlers.Offers.Open))
	mux.Handle("PATCH /api/offers/{id}", write(handlers.Offers.Update))
	mux.Handle("DELETE /api/offers/{id}", write(handlers.Offers.Close))
	mux.Handle("POST /api/offers/{id}/buy", write(handlers.Offers.Buy))
	mux.Handle("POST /api/offers/buy", write(handlers.Offers.BuyBulk))
	mux.HandleFunc("GET /api/offers", handlers.Offers.List)
	mux.HandleFunc("GET /api/offers/{id}", handlers.Offers.Get)

	// Bets and positions.
	mux.Handle("POST /api/bets/{id}/claim", write(handlers.Bets.Claim))
	mux.HandleFunc("GET /api/bets/{id}", handlers.Bets.Get)
	mux.Handle("PATCH /api/positions/{id}", write(handlers.Bets.UpdatePosition))
	mux.HandleFunc("GET /api/positions", handlers.Bets.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Bets.GetPosition)

	// Ledger.
	mux.Handle("POST /api/deposit", write(handlers.Balances.Deposit))
	mux.Handle("POST /api/withdraw", write(handlers.Balances.Withdraw))
	mux.HandleFunc("GET /api/balances/{address}", handlers.Balances.Get)
	mux.HandleFunc("GET /api/balances/{address}/history", handlers.Balances.History)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
