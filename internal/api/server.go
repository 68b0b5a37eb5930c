// Package api serves the optional local control API: plugin listing, manual
// triggers, execution history and the event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/obskey/internal/dispatch"
	"github.com/mattjoyce/obskey/internal/events"
	"github.com/mattjoyce/obskey/internal/journal"
)

// Dispatcher lists and triggers plugins.
type Dispatcher interface {
	Plugins() []dispatch.Info
	Trigger(ctx context.Context, name string) (journal.Execution, error)
}

// History reads past executions.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Execution, error)
}

// EventSource is the events hub.
type EventSource interface {
	Since(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// Token is the bearer token. Empty disables authentication.
	Token string
	// TriggerTimeout bounds how long a trigger request waits for its turn
	// in the dispatch loop plus the execution itself.
	TriggerTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	dispatcher Dispatcher
	history    History
	events     EventSource
	logger     *slog.Logger
	startedAt  time.Time
}

// New creates a Server. history and events may be nil.
func New(config Config, d Dispatcher, history History, ev EventSource, logger *slog.Logger) *Server {
	if config.TriggerTimeout <= 0 {
		config.TriggerTimeout = time.Minute
	}
	return &Server{
		config:     config,
		dispatcher: d,
		history:    history,
		events:     ev,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start listens on Config.Listen and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.TriggerTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String(), "auth", s.config.Token != "")

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/plugins", s.handlePlugins)
		r.Post("/plugins/{name}/trigger", s.handleTrigger)
		r.Get("/executions", s.handleExecutions)
		r.Get("/events", s.handleEvents)
		r.Get("/events/stream", s.handleEventStream)
		r.Get("/openapi.json", s.handleOpenAPI)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
