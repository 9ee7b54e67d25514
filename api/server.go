// Package api exposes the room over HTTP: REST endpoints for mutations and
// history, a websocket for the realtime event stream.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"staffroom/auth"
	"staffroom/services"
)

type Server struct {
	chatService services.IChatService
	log         *slog.Logger
	validate    *validator.Validate
	upgrader    websocket.Upgrader
	// connectionBufferSize caps the per-connection event backlog before
	// events are dropped in favor of the reconnect replay.
	connectionBufferSize int
}

func NewServer(log *slog.Logger, chatService services.IChatService, connectionBufferSize int) *Server {
	return &Server{
		chatService: chatService,
		log:         log,
		validate:    validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browser origins are enforced by the platform gateway.
				return true
			},
		},
		connectionBufferSize: connectionBufferSize,
	}
}

// Router wires all routes behind the identity middleware.
func (s *Server) Router(issuer auth.TokenIssuer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Use(auth.Middleware(issuer))

		api.Post("/messages", s.handlePostMessage)
		api.Get("/messages", s.handleHistory)
		api.Post("/messages/read", s.handleMarkRead)
		api.Get("/messages/search", s.handleSearch)
		api.Delete("/messages/{id}", s.handleRedact)
		api.Delete("/messages", s.handleClearAll)
		api.Get("/room/members", s.handleMembers)
		api.Get("/room/ws", s.handleWebsocket)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
