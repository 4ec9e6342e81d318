// Package server wires the model registry, handlers and middleware into an
// HTTP server with an optional metrics listener.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/openhtm/htmserve/internal/api/handlers"
	"github.com/openhtm/htmserve/internal/observability/metrics"
	"github.com/openhtm/htmserve/internal/registry"
)

// Server is the HTTP front of the model registry.
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	router        *mux.Router
	logger        *logrus.Logger
	config        *Config
	handlers      *handlers.Handlers
	metrics       *metrics.PrometheusMetrics
}

// New creates a server around an existing registry.
func New(config *Config, reg *registry.Registry, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if reg == nil {
		return nil, fmt.Errorf("server requires a registry")
	}

	var pm *metrics.PrometheusMetrics
	if config.EnableMetrics {
		pm = metrics.NewPrometheusMetrics()
	}

	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		config:   config,
		handlers: handlers.NewHandlers(reg, pm, logger),
		metrics:  pm,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	if config.EnableMetrics {
		s.setupMetricsServer()
	}

	return s, nil
}

// Start runs the listeners and blocks until the main server stops.
func (s *Server) Start(ctx context.Context) error {
	if s.metricsServer != nil {
		go func() {
			s.logger.WithField("address", s.metricsServer.Addr).Info("Starting metrics server")
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.WithError(err).Error("Metrics server error")
			}
		}()
	}

	s.logger.WithField("address", s.httpServer.Addr).Info("Starting HTTP server")
	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Error("Error shutting down metrics server")
		}
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Error shutting down HTTP server")
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handlers.Health.Health).Methods("GET")
	s.router.HandleFunc("/health/ready", s.handlers.Health.Ready).Methods("GET")
	s.router.HandleFunc("/health/live", s.handlers.Health.Live).Methods("GET")
	s.router.HandleFunc("/version", s.handlers.Health.Version).Methods("GET")

	s.router.HandleFunc("/models", s.handlers.Models.Create).Methods("POST")
	s.router.HandleFunc("/models", s.handlers.Models.List).Methods("GET")
	s.router.HandleFunc("/models/{id}", s.handlers.Models.Get).Methods("GET")
	s.router.HandleFunc("/models/{id}", s.handlers.Models.Run).Methods("PUT")
	s.router.HandleFunc("/models/{id}", s.handlers.Models.Delete).Methods("DELETE")
	s.router.HandleFunc("/models/{id}/reset", s.handlers.Models.Reset).Methods("POST")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestIDMiddleware)
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimitMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metricsMiddleware)
	}
}

func (s *Server) setupMetricsServer() {
	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", s.handlers.MetricsHandler()).Methods("GET")
	metricsRouter.HandleFunc("/health", s.handlers.Health.Health).Methods("GET")

	s.metricsServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.MetricsPort),
		Handler:      metricsRouter,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Router exposes the mux router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}
