//go:build !js && !tinygo && !cloudflare

package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// same policy as the CORS headers: any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams job status as JSON messages until the job is terminal
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	updates, stop, err := s.jobs.Subscribe(id)
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	defer stop()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "id", id, "err", err)
		return
	}
	defer conn.Close()

	// the reader notices the client going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				stop()
				return
			}
		}
	}()

	for st := range updates {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(st); err != nil {
			s.log.Debug("websocket write failed", "id", id, "err", err)
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "export finished"))
}
