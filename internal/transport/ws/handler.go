// Package ws serves viewer websocket sessions: channel subscriptions authorized by the
// join policy, and location pushes delivered by the dispatcher through the directory.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleet-tracker/internal/policy/engine"
	"fleet-tracker/internal/security"
	"fleet-tracker/internal/subscription"
)

const maxFrameBytes = 4096

// Directory is the part of the subscription directory a session touches.
type Directory interface {
	Join(ch subscription.Channel, s subscription.Session)
	Leave(ch subscription.Channel, id subscription.SessionID)
	LeaveAll(id subscription.SessionID)
}

// IdentityFunc returns the authenticated caller of r.
type IdentityFunc func(ctx context.Context) (security.Identity, bool)

// Config tunes session queues and keepalive.
type Config struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Handler upgrades authenticated requests to viewer sessions.
type Handler struct {
	directory Directory
	policy    engine.Evaluator
	identity  IdentityFunc
	cfg       Config
	upgrader  websocket.Upgrader
}

// NewHandler returns a Handler. identity reads the caller placed in the context by the auth
// middleware.
func NewHandler(directory Directory, policy engine.Evaluator, identity IdentityFunc, cfg Config) *Handler {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Handler{
		directory: directory,
		policy:    policy,
		identity:  identity,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			// Sessions authenticate with a bearer token, not cookies.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the session until the viewer disconnects.
// The session has left every channel by the time ServeHTTP returns.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade user=%s: %v", id.UserID, err)
		return
	}
	s := newSession(conn, h.cfg.SendBuffer)
	log.Printf("ws: session %s opened user=%s role=%s", s.ID(), id.UserID, id.Role)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(h.cfg.PingInterval, h.cfg.WriteTimeout)
	}()

	h.readPump(r.Context(), s, id)

	h.directory.LeaveAll(s.ID())
	s.close()
	<-writerDone
	log.Printf("ws: session %s closed", s.ID())
}

func (h *Handler) readPump(ctx context.Context, s *Session, id security.Identity) {
	pongWait := h.cfg.PingInterval * 2
	s.conn.SetReadLimit(maxFrameBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws: session %s read: %v", s.ID(), err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(ctx, s, id, data)
	}
}

func (h *Handler) handleFrame(ctx context.Context, s *Session, id security.Identity, data []byte) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.TrySend(errorFrame("", "malformed frame"))
		return
	}
	if f.Action != actionSubscribe && f.Action != actionUnsubscribe {
		s.TrySend(errorFrame(f.Action, "unknown action"))
		return
	}
	ch, err := f.channelOf(id.UserID)
	if err != nil {
		s.TrySend(errorFrame(f.Action, err.Error()))
		return
	}

	if f.Action == actionUnsubscribe {
		h.directory.Leave(ch, s.ID())
		s.TrySend(ackFrame(f.Action, ch))
		return
	}

	allowed, err := h.policy.AllowJoin(ctx, engine.JoinRequest{UserID: id.UserID, Role: id.Role, Channel: ch})
	if err != nil {
		log.Printf("ws: session %s join %s: %v", s.ID(), ch, err)
		s.TrySend(errorFrame(f.Action, "policy evaluation failed"))
		return
	}
	if !allowed {
		s.TrySend(errorFrame(f.Action, "forbidden"))
		return
	}
	h.directory.Join(ch, s)
	s.TrySend(ackFrame(f.Action, ch))
}
