package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/auth"
	"github.com/PortNumber53/landing-api/internal/config"
	"github.com/PortNumber53/landing-api/internal/handlers"
	requesttracking "github.com/PortNumber53/landing-api/internal/middleware"
	"github.com/PortNumber53/landing-api/internal/worker"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Webhook     *handlers.WebhookHandler
	Stripe      *handlers.StripeHandler
	Contacts    handlers.ContactStore
	DB          handlers.Pinger
	Observer    requesttracking.RequestObserver
	Gatherer    prometheus.Gatherer
	RelayWorker *worker.Worker
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
}

// New constructs an HTTP server using the provided configuration and dependencies.
func New(cfg config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requesttracking.NewRequestTracker(deps.Observer).Middleware())
	router.Use(middleware.Recoverer)

	router.Get("/healthz", handlers.Health)
	if deps.DB != nil {
		router.Get("/readyz", handlers.Ready(deps.DB))
	}
	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if deps.Webhook != nil {
		deps.Webhook.RegisterRoutes(router)
	}
	if deps.Contacts != nil {
		router.Post("/api/contact", handlers.Contact(deps.Contacts))
	}
	if deps.Stripe != nil {
		deps.Stripe.RegisterRoutes(router, auth.Middleware([]byte(cfg.SessionSecret)))
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: srv, worker: deps.RelayWorker}
}

// Start begins serving HTTP traffic and starts the relay worker. It blocks until
// the server stops and returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	if s.worker != nil {
		s.worker.Start(context.Background())
	}
	log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and worker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.worker != nil {
		if werr := s.worker.Stop(ctx); werr != nil {
			log.Error().Err(werr).Msg("relay worker shutdown error")
		}
	}
	return err
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
