package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/triviasearch/internal/config"
	"github.com/saltyorg/triviasearch/internal/search"
	"github.com/saltyorg/triviasearch/internal/snapshot"
	"github.com/saltyorg/triviasearch/internal/web/handlers"
	"github.com/saltyorg/triviasearch/internal/web/middleware"
	"github.com/saltyorg/triviasearch/internal/web/sse"
)

// Options configures a Server.
type Options struct {
	Port       int
	Bind       string
	AllowedNet *net.IPNet
	// CORSOrigins lists browser origins allowed to call the API and open
	// the search websocket.
	CORSOrigins []string
	// PublishPath, when set, is served at /db.sqlite3.
	PublishPath string
	Heartbeat   time.Duration
}

// Server represents the web server
type Server struct {
	opts      Options
	loader    *snapshot.Loader
	router    *chi.Mux
	sseBroker *sse.Broker
	handlers  *handlers.Handlers
}

// NewServer creates a new web server reading through binding.
func NewServer(loader *snapshot.Loader, binding *search.Binding, opts Options) *Server {
	s := &Server{
		opts:      opts,
		loader:    loader,
		router:    chi.NewRouter(),
		sseBroker: sse.NewBroker(opts.Heartbeat),
		handlers:  handlers.New(loader, binding),
	}
	s.handlers.SetPublishPath(opts.PublishPath)
	s.handlers.SetAllowedOrigins(opts.CORSOrigins)

	s.setupRoutes()
	return s
}

// SSEBroker returns the SSE broker
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// Handlers returns the HTTP handlers
func (s *Server) Handlers() *handlers.Handlers {
	return s.handlers
}

// Router returns the root handler
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.opts.AllowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.opts.CORSOrigins))
	// Timeout is per-group so SSE and websocket connections can stay open

	r.Group(func(r chi.Router) {
		r.Get("/api/events", s.sseBroker.Handler(func() any { return h.CurrentStatus() }).ServeHTTP)
		r.Get("/api/ws", h.SearchSocket)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Get("/healthz", h.Healthz)
		r.Get("/db.sqlite3", h.PublishSnapshot)

		r.Route("/api", func(r chi.Router) {
			r.Get("/status", h.Status)
			r.Get("/search", h.Search)
			r.Get("/version", h.Version)
		})
	})
}

// watchLoader reports loader transitions to SSE clients.
func (s *Server) watchLoader(ctx context.Context) {
	if st := s.loader.Status(); st.State == snapshot.StateLoading || st.State == snapshot.StateIdle {
		s.sseBroker.Broadcast(sse.Event{Type: sse.EventDatabaseLoading, Data: s.handlers.CurrentStatus()})
	}

	select {
	case <-ctx.Done():
		return
	case <-s.loader.Done():
	}

	st := s.loader.Status()
	switch st.State {
	case snapshot.StateReady:
		log.Info().Str("size", formatBytes(st.Size)).Int("attempts", st.Attempts).Msg("Snapshot ready for search")
		s.sseBroker.Broadcast(sse.Event{Type: sse.EventDatabaseReady, Data: s.handlers.CurrentStatus()})
	case snapshot.StateFailed:
		log.Error().Err(st.Err).Int("attempts", st.Attempts).Msg("Snapshot unavailable; searches will return no results")
		s.sseBroker.Broadcast(sse.Event{Type: sse.EventDatabaseFailed, Data: s.handlers.CurrentStatus()})
	}
}

// Addr returns the listen address
func (s *Server) Addr() string {
	if s.opts.Bind != "" {
		return fmt.Sprintf("%s:%d", s.opts.Bind, s.opts.Port)
	}
	return fmt.Sprintf(":%d", s.opts.Port)
}

// Start starts the web server and blocks until ctx is done or it fails.
func (s *Server) Start(ctx context.Context) error {
	addr := s.Addr()

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go s.watchLoader(watchCtx)

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop SSE broker first to close all client connections gracefully
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetTimeouts().Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		s.sseBroker.Stop()
		return err
	}
}

// formatBytes formats bytes as human readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
