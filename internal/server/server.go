// Package server exposes sessions, decks and matchmaking over HTTP and
// websockets.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/matchmaking"
	"github.com/QuinnsCode/qbear3-sub004/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Deps are the services the server routes to.
type Deps struct {
	Sessions    *session.Manager
	Matchmaking *matchmaking.Manager
	Decks       *cards.DeckStore
	Templates   *cards.Templates
	// Ready reports backend health for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	cfg      config.ServerConfig
	session  config.SessionConfig
	deps     Deps
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a server for cfg.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg.Server,
		session: cfg.Session,
		deps:    deps,
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.http = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.createSession)
			r.Get("/{id}", s.getSession)
			r.Delete("/{id}", s.deleteSession)
			r.Get("/{id}/checksum", s.sessionChecksum)
		})
		r.Put("/decks/{id}", s.putDeck)
		r.Get("/decks/{id}", s.getDeck)
		r.Get("/templates", s.listTemplates)
		r.Get("/matchmaking", s.listRegions)
		r.Get("/matchmaking/{region}/status", s.queueStatus)
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/sessions/{id}", s.sessionSocket)
		r.Get("/matchmaking/{region}", s.matchmakingSocket)
	})
	return r
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.cfg.Address))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Hijacked
// websocket connections are closed by their session or queue.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	s.logger.Warn("websocket origin rejected", zap.String("origin", origin))
	return false
}
