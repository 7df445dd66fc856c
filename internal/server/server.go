package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apiodactyl/apiodactyl/internal/cache"
	"github.com/apiodactyl/apiodactyl/internal/handler"
	"github.com/apiodactyl/apiodactyl/internal/openapi"
	"github.com/apiodactyl/apiodactyl/internal/server/middleware"
	"github.com/apiodactyl/apiodactyl/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// SweepInterval controls how often expired cache entries are evicted
	// while the server runs.
	SweepInterval time.Duration
	Version       string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		SweepInterval:   cache.DefaultSweepInterval,
		Version:         "dev",
	}
}

// Pinger reports whether the key store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the top-level HTTP server for apiodactyl. It owns the Chi router,
// the authentication service and the background cache sweeper.
type Server struct {
	cfg        Config
	router     chi.Router
	store      Pinger
	authSvc    *service.AuthService
	registry   *prometheus.Registry
	sweeper    *cache.Sweeper
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. reg receives the HTTP metrics and is served on
// /metrics; pass the same registry to service.NewMetrics so key validation
// metrics are exposed alongside. A nil reg gets a private registry.
func New(cfg Config, store Pinger, authSvc *service.AuthService, reg *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		authSvc:  authSvc,
		registry: reg,
		sweeper:  cache.NewSweeper(authSvc.Cache(), cfg.SweepInterval, logger),
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	httpMetrics := middleware.NewHTTPMetrics(s.registry)

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "WWW-Authenticate"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httpMetrics.Handler)
	r.Use(chimw.Compress(5))

	// --- Probes and metadata (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version).ServeSpec)

	// --- Auth API ---
	authHandler := handler.NewAuthHandler(s.authSvc, s.logger)
	r.Route(openapi.BasePath, func(r chi.Router) {
		r.Use(middleware.Authenticate(s.authSvc))

		// Any valid key
		r.Get("/profile", authHandler.Profile)
		r.Get("/is-admin", authHandler.IsAdmin)

		// Admin keys only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Post("/create-key", authHandler.CreateKey)
			r.Delete("/revoke-key", authHandler.RevokeKey)
			r.Delete("/keys/{keyId}", authHandler.RevokeKeyByID)
			r.Post("/keys/{keyId}/promote", authHandler.PromoteKey)
			r.Get("/list-keys", authHandler.ListKeys)
			r.Post("/cleanup-cache", authHandler.CleanupCache)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the key store is
// reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.store == nil {
		checks["store"] = "error: not configured"
		status = "degraded"
	} else if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
	}
	checks["cache_entries"] = fmt.Sprint(s.authSvc.Cache().Len())

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before stopping the cache sweeper and the last-used worker.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.sweeper.Start()
	defer s.sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// No requests are in flight, so no more last-used updates can arrive.
	s.authSvc.Close()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
