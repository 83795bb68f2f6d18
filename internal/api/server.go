package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/marcus/todos/internal/realtime"
	"github.com/marcus/todos/internal/serverdb"
)

// Server is the HTTP API server for the todos backend.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	hub         *realtime.Hub
	verifier    *CredentialVerifier
	metrics     *Metrics
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	addr        string

	// ctx ends long-lived listeners on shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new Server with the given config, store and hub.
func NewServer(cfg Config, store *serverdb.ServerDB, hub *realtime.Hub) (*Server, error) {
	if hub == nil {
		hub = realtime.NewHub()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      cfg,
		store:       store,
		hub:         hub,
		verifier:    NewCredentialVerifier(cfg.CredentialProvider, cfg.CredentialIssuer, cfg.CredentialSecret),
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(cfg.RateLimitAuth),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler, for mounting under httptest.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Addr returns the bound listen address once Start has run.
func (s *Server) Addr() string { return s.addr }

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	go s.cleanupLoop(5 * time.Minute)

	return nil
}

// cleanupLoop periodically drops expired session keys and old auth events.
func (s *Server) cleanupLoop(every time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cleanup panic", "panic", r)
		}
	}()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Server) cleanup() {
	if n, err := s.store.CleanupExpiredSessionKeys(); err != nil {
		slog.Error("cleanup session keys", "err", err)
	} else if n > 0 {
		slog.Info("cleaned up expired session keys", "count", n)
	}
	if s.config.AuthEventRetention > 0 {
		if n, err := s.store.CleanupAuthEvents(s.config.AuthEventRetention); err != nil {
			slog.Error("cleanup auth events", "err", err)
		} else if n > 0 {
			slog.Info("cleaned up auth events", "count", n)
		}
	}
}

// Shutdown stops accepting requests and closes open listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.rateLimiter.Stop()
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware, requestIDMiddleware, loggerMiddleware, accessMiddleware(s.metrics))
	if mw := s.corsMiddleware(); mw != nil {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(authRateLimitMiddleware(s.rateLimiter), maxBytesMiddleware(64<<10))
		r.Post("/anonymous", s.handleSignInAnonymous)
		r.Post("/signup", s.handleSignUp)
		r.Post("/password", s.handleSignInPassword)
		r.Post("/credential", s.handleSignInCredential)
		r.With(s.requireAuth).Post("/signout", s.handleSignOut)
		r.With(s.requireAuth).Get("/session", s.handleSession)
	})

	r.Route("/v1/todos", func(r chi.Router) {
		r.Use(s.requireAuth, maxBytesMiddleware(1<<20))
		r.Get("/", s.handleListTodos)
		r.Post("/", s.handleCreateTodo)
		r.Get("/listen", s.handleListen)
		r.Put("/{id}", s.handleUpdateTodo)
		r.Delete("/{id}", s.handleDeleteTodo)
	})

	return r
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "listeners": s.hub.Count()})
}
