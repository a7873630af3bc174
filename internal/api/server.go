package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/driver"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/pool"
)

// Server represents the HTTP API server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	manager *driver.Manager
}

// NewServer creates a new HTTP server
func NewServer(port string, manager *driver.Manager, loadBalancer *pool.LoadBalancer, m *metrics.Metrics) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handlers := NewHandlers(manager, loadBalancer)

	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", handlers.CreateSession)
		r.Get("/", handlers.ListSessions)
		r.Post("/resume", handlers.ResumeSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handlers.GetSession)
			r.Delete("/", handlers.DestroySession)
			r.Put("/rename", handlers.RenameSession)
			r.Post("/commands/{name}", handlers.ExecuteCommand)
			r.Post("/evaluate", handlers.Evaluate)
			r.Get("/accessibility", handlers.AccessibilityTree)
		})
	})

	router.Route("/owners/{owner}", func(r chi.Router) {
		r.Get("/sessions", handlers.ListOwnerSessions)
	})

	router.Get("/health", handlers.Health)
	router.Get("/pool", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, loadBalancer.GetMetrics())
	})
	router.Method(http.MethodGet, "/metrics", m.Handler())

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		router:  router,
		server:  server,
		manager: manager,
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "addr", s.server.Addr)

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	slog.Info("HTTP server stopped")
	return nil
}
