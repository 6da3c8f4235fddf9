package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-relay/internal/config"
	"github.com/npezzotti/go-relay/internal/server"
)

type RelayApp struct {
	log            *log.Logger
	mux            *http.Server
	rs             *server.RelayServer
	allowedOrigins []string
	newConnId      func() string
}

func NewRelayApp(r chi.Router, logger *log.Logger, rs *server.RelayServer, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:            logger,
		rs:             rs,
		allowedOrigins: cfg.AllowedOrigins,
		newConnId:      uuid.NewString,
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Get("/ws", s.serveWs)
		r.Get("/health", s.health)
		r.Get("/stats", s.relayStats)
	})
	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(r)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
