package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dterzis/voicegate/internal/session"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPushInterval = 5 * time.Second
)

type wsClientMessage struct {
	Type string `json:"type"`
}

// handleSessionWS streams session status to the client for the duration of a
// call. The client sends {"type":"ping"} keepalives and may request an
// immediate snapshot with {"type":"status"}; the feed also pushes snapshots
// periodically and closes once the session reaches a terminal state.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	id, err := s.verifier.Verify(raw)
	if err != nil {
		s.respondFault(w, err)
		return
	}

	sessionID := chi.URLParam(r, "id")
	sess, err := s.registry.Get(r.Context(), id.UserID, sessionID)
	if err != nil {
		s.respondFault(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	writeStatus := func(sess *session.Session) error {
		s.metrics.WSMessages.WithLabelValues("out", "status").Inc()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(map[string]any{
			"type":    "status",
			"payload": statusOf(sess),
		})
	}

	if err := writeStatus(sess); err != nil {
		return
	}

	quit := make(chan struct{})
	defer close(quit)

	incoming := make(chan wsClientMessage)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg wsClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			select {
			case incoming <- msg:
			case <-quit:
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ws] read failed for session %s: %v", sessionID, err)
			}
			return
		case msg := <-incoming:
			s.metrics.WSMessages.WithLabelValues("in", msg.Type).Inc()
			switch msg.Type {
			case "ping":
				_ = s.registry.Touch(r.Context(), sessionID)
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				s.metrics.WSMessages.WithLabelValues("out", "pong").Inc()
				if err := conn.WriteJSON(map[string]any{"type": "pong"}); err != nil {
					return
				}
			case "status":
				sess, err := s.registry.Get(r.Context(), id.UserID, sessionID)
				if err != nil {
					return
				}
				if err := writeStatus(sess); err != nil {
					return
				}
			}
		case <-ticker.C:
			sess, err := s.registry.Get(r.Context(), id.UserID, sessionID)
			if err != nil {
				return
			}
			if err := writeStatus(sess); err != nil {
				return
			}
			if sess.Status == session.StatusEnded || sess.Status == session.StatusError {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(wsWriteTimeout))
				return
			}
		}
	}
}
