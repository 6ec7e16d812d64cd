package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/handlers"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/middleware"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *logger.Logger
}

// New creates a new HTTP server. stream serves the live record WebSocket.
func New(cfg *config.Config, handler *handlers.Handler, stream http.Handler, log *logger.Logger) *Server {
	mw := middleware.New(cfg.Security, log)

	router := chi.NewRouter()
	router.Use(mw.Recovery)
	router.Use(chimw.RequestID)
	router.Use(mw.Logging)
	router.Use(mw.Security)
	router.Use(mw.CORS)

	// Webhook deliveries are never rate limited
	router.Post("/webhook", handler.GitHubWebhook)
	router.Post("/webhook/github", handler.GitHubWebhook)

	router.Group(func(r chi.Router) {
		r.Use(mw.RateLimit)
		r.Get("/health", handler.HealthCheck)

		r.Group(func(r chi.Router) {
			r.Use(mw.APIKeyAuth)
			r.Post("/prompt", handler.SubmitPrompt)
			r.Get("/prompts", handler.ListPrompts)
		})

		if stream != nil {
			r.Method(http.MethodGet, "/ws", stream)
		}
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		router: router,
		log:    log,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background. A listener failure is sent on errCh.
func (s *Server) Start(errCh chan<- error) {
	s.log.Infof("HTTP server listening on %s", s.httpServer.Addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.log.Info("HTTP server shutdown complete")
	return nil
}
