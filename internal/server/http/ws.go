package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/session"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 30 * time.Second
	wsPingPeriod = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers cannot set Authorization on WebSocket requests, so the bearer
	// travels as the second entry of the subprotocol list.
	Subprotocols: []string{"token"},
	CheckOrigin:  func(*http.Request) bool { return true },
}

// wsFrame is the live-feed wire frame. Log frames carry the event in Data;
// pong frames carry nothing else.
type wsFrame struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id,omitempty"`
	Data      *model.Envelope `json:"data,omitempty"`
}

// wsBearer extracts the bearer smuggled through Sec-WebSocket-Protocol as
// ["token", <bearer>].
func wsBearer(r *http.Request) string {
	protos := websocket.Subprotocols(r)
	if len(protos) == 2 && protos[0] == "token" {
		return protos[1]
	}
	return ""
}

// handleWS upgrades the connection, registers a hub subscriber scoped to the
// caller's memberships, and pumps envelopes until either side goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	p, err := s.sessions.Validate(wsBearer(r), session.PurposeSession)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
		return
	}

	var filter *uuid.UUID
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request"})
			return
		}
		filter = &id
	}

	projects, err := s.authz.VisibleProjects(r.Context(), p)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, http.Header{
		"Sec-WebSocket-Protocol": []string{"token"},
	})
	if err != nil {
		// Upgrade already wrote the response.
		return
	}

	sub := s.hub.Register(p.UserID, p.IsAdmin(), projects, filter)
	defer s.logDrops(sub, p.UserID)
	defer s.hub.Unregister(sub)
	defer conn.Close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Reader services control frames, answers application-level pings, and
	// detects the peer closing. Pongs go through a channel so the writer
	// goroutine stays the only writer.
	done := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(done)
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage && string(bytes.TrimSpace(msg)) == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case env, ok := <-sub.Out():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			frame := wsFrame{Type: "log", ProjectID: env.ProjectID.String(), Data: &env}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-pings:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsFrame{Type: "pong"}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// logDrops surfaces per-subscriber drop counts at disconnect, for operators
// chasing slow consumers.
func (s *Server) logDrops(sub interface{ Drops() int64 }, userID uuid.UUID) {
	if n := sub.Drops(); n > 0 {
		s.log.Info("ws subscriber dropped events",
			zap.String("user", userID.String()),
			zap.Int64("dropped", n),
		)
	}
}
