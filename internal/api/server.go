package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dripdrop/launchsite/internal/config"
	"github.com/dripdrop/launchsite/internal/metrics"
	"github.com/dripdrop/launchsite/internal/ratelimit"
	"github.com/dripdrop/launchsite/internal/signup"
)

// Server is the public HTTP server: the signup API plus the static site.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	service    *signup.Service
	limiter    ratelimit.Limiter
	config     *config.Config
	logger     *slog.Logger
}

// NewServer creates the HTTP server. service may be nil when no provider is
// configured; the signup endpoint then answers 503.
func NewServer(service *signup.Service, limiter ratelimit.Limiter, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.Post("/api/email-signup", s.handleSignup)
	s.router.Get("/api/health", s.handleHealth)

	// Coming-soon page assets, when configured
	if s.config.Server.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.Server.StaticDir))
		s.router.Handle("/*", fs)
	}
}

// Handler returns the routed handler, used directly by the ACME listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
