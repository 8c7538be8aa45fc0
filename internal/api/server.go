package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/mattjoyce/hooky/internal/auth"
	"github.com/mattjoyce/hooky/internal/capture"
	"github.com/mattjoyce/hooky/internal/events"
	"github.com/mattjoyce/hooky/internal/metrics"
	"github.com/mattjoyce/hooky/internal/session"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/webhook"
)

// Config holds API server configuration.
type Config struct {
	Listen          string
	BaseURL         string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	SecureCookies   bool
}

// Deps are the collaborators the server routes to.
type Deps struct {
	DB       *storage.DB
	Webhooks *webhook.Service
	Users    *auth.Users
	Tokens   *auth.Tokens
	Sessions *session.Manager
	Hub      *events.Hub
	Capture  *capture.Handler
}

// Server is the hooky HTTP server.
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	keepAlive time.Duration
}

// New creates a new API server instance.
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
		keepAlive: 15 * time.Second,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server starting", "listen", s.config.Listen, "base_url", s.config.BaseURL)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/openapi.json", s.handleOpenAPI)

	// Capture is public and answers with whatever the owner configured, so
	// it stays outside the CORS and caller middleware.
	s.deps.Capture.Mount(r)

	r.Group(func(r chi.Router) {
		r.Use(s.corsMiddleware())
		r.Use(s.callerMiddleware)

		r.Get("/init", s.handleInit)

		r.Route("/api", func(r chi.Router) {
			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", s.handleRegister)
				r.Post("/login", s.handleLogin)
				r.Post("/logout", s.handleLogout)
				r.Get("/me", s.handleMe)
			})

			r.Route("/webhooks", func(r chi.Router) {
				r.Get("/", s.handleListWebhooks)
				r.Post("/", s.handleCreateWebhook)
				r.Get("/unclaimed", s.handleUnclaimed)
				r.Post("/claim", s.handleClaim)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetWebhook)
					r.Patch("/", s.handleUpdateWebhook)
					r.Delete("/", s.handleDeleteWebhook)

					r.Get("/response", s.handleGetResponse)
					r.Put("/response", s.handlePutResponse)
					r.Delete("/response", s.handleResetResponse)

					r.Get("/requests", s.handleListRequests)
					r.Delete("/requests", s.handleClearRequests)
					r.Get("/requests/{requestID}", s.handleGetRequest)

					r.Get("/events", s.handleEvents)
				})
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// corsMiddleware allows the configured origins. With none configured the
// API is same-origin only.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	if len(s.config.CORSOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler
}

// loggingMiddleware logs HTTP requests. Bodies are never logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
