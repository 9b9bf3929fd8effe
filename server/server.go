// Package server wires the chi router, middleware stack and HTTP server
// lifecycle of the prescription analyzer.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/giygas/prescription-analyzer/config"
	"github.com/giygas/prescription-analyzer/handlers"
	"github.com/giygas/prescription-analyzer/interfaces"
	"github.com/giygas/prescription-analyzer/logging"
	"github.com/giygas/prescription-analyzer/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server
type Server struct {
	server      *http.Server
	router      chi.Router
	handler     interfaces.HTTPHandler
	config      *config.Config
	rateLimiter *RateLimiter
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()

	s := &Server{
		server: &http.Server{
			Handler:           router,
			Addr:              cfg.Address + ":" + cfg.Port,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			// Uploads may wait on several OCR providers in turn
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		router:      router,
		handler:     handler,
		config:      cfg,
		rateLimiter: NewRateLimiter(30 * time.Minute),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.DefaultLogger()))
	s.router.Use(middleware.Recoverer)
	s.router.Use(CORSMiddleware())
	// The body limit leaves room for the multipart envelope around an image
	// of MaxRequestBody bytes, which the upload handler checks exactly.
	s.router.Use(RequestSizeMiddleware(handlers.MaxBodySize(s.config.MaxRequestBody), s.config.MaxHeaderSize))
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(metrics.Metrics)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handler.Welcome)
	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Post("/process-prescription", s.handler.ProcessPrescription)
	s.router.Post("/api/generic-alternatives", s.handler.GenericAlternatives)
	s.router.Post("/medicine-info", s.handler.MedicineInfo)
	s.router.Get("/prices/{medicine}", s.handler.ComparePrices)
}

// Router exposes the configured router (tests)
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	s.rateLimiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}
