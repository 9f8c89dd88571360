package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/progress-engine/internal/auth"
	"github.com/terra-clan/progress-engine/internal/catalog"
	"github.com/terra-clan/progress-engine/internal/config"
	"github.com/terra-clan/progress-engine/internal/health"
	"github.com/terra-clan/progress-engine/internal/progress"
	"github.com/terra-clan/progress-engine/internal/sessions"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	catalog        *catalog.Loader
	sessions       *sessions.Manager
	tracker        *progress.Tracker
	health         *health.Registry
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	loader *catalog.Loader,
	manager *sessions.Manager,
	tracker *progress.Tracker,
	verifier *auth.Verifier,
	registry *health.Registry,
) *Server {
	if registry == nil {
		registry = health.NewRegistry()
	}

	s := &Server{
		config:         cfg,
		catalog:        loader,
		sessions:       manager,
		tracker:        tracker,
		health:         registry,
		authMiddleware: NewAuthMiddleware(verifier),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		// Long-lived, so no request timeout
		r.Get("/progress/stream", s.handleProgressStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Catalog
			r.Route("/tools", func(r chi.Router) {
				r.Get("/", s.handleListTools)
				r.Get("/{toolId}", s.handleGetTool)
			})

			// Progress
			r.Route("/progress", func(r chi.Router) {
				r.Get("/", s.handleGetSummary)
				r.Get("/{toolId}", s.handleGetToolProgress)
				r.Put("/{toolId}/steps/{stepId}", s.handleMarkComplete)
				r.Delete("/{toolId}/steps/{stepId}", s.handleMarkIncomplete)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
