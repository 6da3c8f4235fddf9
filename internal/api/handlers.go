package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-relay/internal/server"
)

const statsTimeout = 2 * time.Second

func (s *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// checkOrigin allows requests without an Origin header, any origin when the
// allow list contains "*", and otherwise only listed origins.
func (s *RelayApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
}

func (s *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(s.newConnId(), conn, s.rs, s.log)
	if err := s.rs.RegisterClient(client); err != nil {
		s.log.Println("register client:", err)
		conn.Close()
		return
	}

	s.log.Printf("accepted connection %q from %s (request %s)", client.ID(), r.RemoteAddr, middleware.GetReqID(r.Context()))
	go client.Write()
	go client.Read()
}

func (s *RelayApp) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *RelayApp) relayStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	st, err := s.rs.Stats(ctx)
	if err != nil {
		s.log.Printf("relay stats: %v", err)
		errResp := NewServiceUnavailableError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, st)
}

func (s *RelayApp) notFound(w http.ResponseWriter, _ *http.Request) {
	errResp := NewNotFoundError()
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *RelayApp) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	errResp := NewMethodNotAllowedError()
	s.writeJson(w, errResp.StatusCode, errResp)
}
