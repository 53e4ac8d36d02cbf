// Package server provides the read-only status API of the daemon.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/ledger"
	"github.com/aristath/autoinvest/internal/scheduler"
	"github.com/aristath/autoinvest/internal/tenant"
)

// TaskLister exposes the scheduler's task table.
type TaskLister interface {
	Submitted() []scheduler.Status
}

// LedgerReader reads the operations journal.
type LedgerReader interface {
	Recent(ctx context.Context, limit int) ([]ledger.Entry, error)
	CountByAccount(ctx context.Context) (map[string]int, error)
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Tenants   []tenant.Tenant
	Scheduler TaskLister
	Ledger    LedgerReader
	Events    http.Handler // websocket event stream, optional
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	port      int
	tenants   map[string]tenant.Tenant
	order     []string
	scheduler TaskLister
	ledger    LedgerReader
	events    http.Handler
	system    *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		tenants:   make(map[string]tenant.Tenant, len(cfg.Tenants)),
		scheduler: cfg.Scheduler,
		ledger:    cfg.Ledger,
		events:    cfg.Events,
		system:    NewSystemHandlers(cfg.Log, cfg.DataDir),
	}
	for _, t := range cfg.Tenants {
		name := t.SessionInfo().Username
		s.tenants[name] = t
		s.order = append(s.order, name)
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // event stream connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", s.handleHealth)
			r.Get("/tenants", s.handleTenants)
			r.Get("/tenants/{account}/overview", s.handleOverview)
			r.Get("/scheduler/tasks", s.handleTasks)
			r.Get("/ledger", s.handleLedger)
			r.Get("/system", s.system.HandleSystemStats)
		})

		if s.events != nil {
			r.Get("/events/ws", s.events.ServeHTTP)
		}
	})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
