package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"staffroom/auth"
	"staffroom/sink"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 45 * time.Second
)

// handleWebsocket subscribes one connection to the room event stream.
// The write loop drains the connection sink; the read loop only services
// control frames and detects disconnection. All client mutations go through
// the REST endpoints, so the ordering contract stays: subscribe first,
// then fetch history, then replay.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	connection := sink.NewConnection(s.connectionBufferSize)
	s.chatService.Join(connectionID, participant.ID, connection)
	s.log.Info("participant connected", "participant", participant.ID, "connection", connectionID)

	defer func() {
		s.chatService.Leave(connectionID)
		_ = conn.Close()
		s.log.Info("participant disconnected", "participant", participant.ID, "connection", connectionID)
	}()

	// Read loop: discard everything, unblock on close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt := <-connection.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(toRoomEvent(evt, participant.ID)); err != nil {
				s.log.Warn("failed to push event", "participant", participant.ID, "error", err)
				return
			}
		}
	}
}
