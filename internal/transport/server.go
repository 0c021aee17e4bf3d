// Package transport is the HTTP/WebSocket front door: health checks,
// Prometheus metrics, and the /ws upgrade that hands a connection off to
// a freshly constructed Session Controller. Routing and middleware setup
// follow the teacher's chi + cors conventions.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/onexdata/stock-portfolio-analysis/internal/analysis"
	"github.com/onexdata/stock-portfolio-analysis/internal/metrics"
	"github.com/onexdata/stock-portfolio-analysis/internal/observability"
	"github.com/onexdata/stock-portfolio-analysis/internal/repository"
	"github.com/onexdata/stock-portfolio-analysis/internal/session"
)

// Config holds server configuration.
type Config struct {
	Log          zerolog.Logger
	Repo         *repository.Repository
	Registry     *session.Registry
	Kernels      map[string]metrics.Kernel
	Metrics      *observability.Metrics
	PromRegistry *prometheus.Registry
	IdleTimeout  time.Duration
	Port         int
	DevMode      bool
}

// Server is the HTTP server fronting the portfolio analysis service.
type Server struct {
	router       *chi.Mux
	server       *http.Server
	log          zerolog.Logger
	repo         *repository.Repository
	registry     *session.Registry
	kernels      map[string]metrics.Kernel
	metrics      *observability.Metrics
	promRegistry *prometheus.Registry
	idle         time.Duration
}

// New builds a Server with routes and middleware wired.
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "transport").Logger(),
		repo:         cfg.Repo,
		registry:     cfg.Registry,
		kernels:      cfg.Kernels,
		metrics:      cfg.Metrics,
		promRegistry: cfg.PromRegistry,
		idle:         cfg.IdleTimeout,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	s.router.Get("/ws", s.handleWebSocket)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start serves HTTP and blocks until the server stops, so callers run it
// in its own goroutine. ListenAndServe's return
// on graceful shutdown (http.ErrServerClosed) is not an error condition.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting http server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("transport: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
