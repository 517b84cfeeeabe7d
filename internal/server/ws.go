package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/QuinnsCode/qbear3-sub004/internal/hub"
	"github.com/QuinnsCode/qbear3-sub004/internal/matchmaking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// sessionSocket attaches a websocket to a session's registry. The session
// is created on first use. Without playerId the connection spectates.
func (s *Server) sessionSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	playerID := r.URL.Query().Get("playerId")
	playerName := r.URL.Query().Get("playerName")

	sess, err := s.deps.Sessions.Open(r.Context(), sessionID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}

	c := newClient(ws, s.session.SendBuffer, s.logger.With(zap.String("session_id", sessionID)))
	go c.writePump()

	ctx := r.Context()
	registry := sess.Registry
	err = registry.Connect(ctx, c, playerID, playerName)
	if errors.Is(err, hub.ErrClosed) {
		// Evicted between Open and Connect; hydrate it again.
		if sess, err = s.deps.Sessions.Open(ctx, sessionID); err == nil {
			registry = sess.Registry
			err = registry.Connect(ctx, c, playerID, playerName)
		}
	}
	if err != nil {
		s.logger.Info("session connect refused", zap.String("session_id", sessionID), zap.Error(err))
		c.Close(err.Error())
		return
	}

	c.readPump(s.cfg.MaxMessageBytes,
		func(msg []byte) { registry.HandleMessage(ctx, c.ID(), msg) },
		func() { registry.Disconnect(c.ID()) },
	)
}

// matchmakingSocket serves join_queue and leave_queue for one region.
func (s *Server) matchmakingSocket(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Matchmaking.Queue(chi.URLParam(r, "region"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("region", q.Region()), zap.Error(err))
		return
	}

	c := newClient(ws, s.session.SendBuffer, s.logger.With(zap.String("region", q.Region())))
	go c.writePump()

	ctx := r.Context()
	var (
		mu     sync.Mutex
		joined string
	)

	c.readPump(s.cfg.MaxMessageBytes,
		func(data []byte) {
			msg, err := matchmaking.DecodeInbound(data)
			if err != nil {
				s.sendQueueError(c, "malformed message")
				return
			}
			switch msg.Type {
			case matchmaking.TypeJoinQueue:
				if err := q.Join(ctx, c, msg.JoinRequest); err != nil {
					s.sendQueueError(c, err.Error())
					return
				}
				mu.Lock()
				joined = msg.UserID
				mu.Unlock()
			case matchmaking.TypeLeaveQueue:
				mu.Lock()
				playerID := joined
				joined = ""
				mu.Unlock()
				if playerID != "" {
					q.Leave(ctx, playerID)
				}
			default:
				s.sendQueueError(c, "unknown message type: "+msg.Type)
			}
		},
		func() { q.Disconnect(context.WithoutCancel(ctx), c.ID()) },
	)
}

func (s *Server) sendQueueError(c *client, msg string) {
	data, err := json.Marshal(matchmaking.ErrorMessage{Type: matchmaking.TypeError, Error: msg})
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		s.logger.Debug("matchmaking error not delivered", zap.String("conn_id", c.ID()), zap.Error(err))
	}
}
