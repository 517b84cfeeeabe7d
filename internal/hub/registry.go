// Package hub tracks the live connections attached to one session and routes
// messages between them and the session coordinator.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned when connecting to a torn-down registry.
	ErrClosed = errors.New("registry closed")
	// ErrSpectator is returned when a spectator tries to submit an action.
	ErrSpectator = errors.New("spectators cannot submit actions")
)

// Conn is one duplex client connection. Send must not block; a full or
// closed connection returns an error and is pruned by the registry.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close(reason string)
}

// Handler is the session side of the registry.
type Handler interface {
	Snapshot() *game.State
	Join(ctx context.Context, playerID, name string) error
	Submit(ctx context.Context, action game.Action) error
}

// Options tunes heartbeat and cursor behaviour.
type Options struct {
	HeartbeatTimeout time.Duration
	CursorInterval   time.Duration
}

type member struct {
	conn      Conn
	playerID  string // authenticated at connect; empty for spectators
	heartbeat string // best-effort id from the last ping
	lastSeen  time.Time
}

func (m *member) spectator() bool {
	return m.playerID == ""
}

func (m *member) mappedTo(playerID string) bool {
	return m.playerID == playerID || m.heartbeat == playerID
}

// Registry owns the connection set of one session.
type Registry struct {
	sessionID string
	handler   Handler
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	// sendMu orders a new connection's initial snapshot against state
	// broadcasts so a client never receives an older state last.
	sendMu sync.Mutex

	mu         sync.RWMutex
	members    map[string]*member
	spectators int
	lastCursor map[string]time.Time
	closed     bool
}

// NewRegistry creates an empty registry for sessionID.
func NewRegistry(sessionID string, handler Handler, opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessionID:  sessionID,
		handler:    handler,
		opts:       opts,
		logger:     logger.With(zap.String("session_id", sessionID)),
		now:        time.Now,
		members:    make(map[string]*member),
		lastCursor: make(map[string]time.Time),
	}
}

// Connect registers conn. A connection without playerID is a spectator.
// The current snapshot is sent to conn alone; a player not yet seated is
// then joined, which broadcasts to everyone.
func (r *Registry) Connect(ctx context.Context, conn Conn, playerID, playerName string) error {
	r.sendMu.Lock()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.sendMu.Unlock()
		return ErrClosed
	}
	r.members[conn.ID()] = &member{
		conn:     conn,
		playerID: playerID,
		lastSeen: r.now(),
	}
	if playerID == "" {
		r.spectators++
	}
	r.mu.Unlock()

	r.logger.Info("connection registered",
		zap.String("conn_id", conn.ID()),
		zap.String("player_id", playerID),
		zap.Bool("spectator", playerID == ""),
	)

	err := r.sendTo(conn, StateUpdate{Type: TypeStateUpdate, State: r.handler.Snapshot()})
	r.sendMu.Unlock()
	if err != nil {
		r.Disconnect(conn.ID())
		return fmt.Errorf("failed to send initial state: %w", err)
	}

	if playerID != "" && r.handler.Snapshot().Player(playerID) == nil {
		if err := r.handler.Join(ctx, playerID, playerName); err != nil {
			r.logger.Warn("join failed", zap.String("player_id", playerID), zap.Error(err))
			r.sendError(conn, err)
		}
	}
	return nil
}

// HandleMessage routes one inbound frame from connID.
func (r *Registry) HandleMessage(ctx context.Context, connID string, data []byte) {
	r.mu.Lock()
	m, ok := r.members[connID]
	if ok {
		m.lastSeen = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Warn("malformed message", zap.String("conn_id", connID), zap.Error(err))
		r.sendError(m.conn, fmt.Errorf("malformed message: %w", err))
		return
	}

	switch msg.Type {
	case TypePing:
		r.heartbeat(m, msg.PlayerID)
	case TypeCursorMove:
		r.cursor(m, msg.X, msg.Y)
	case "":
		r.sendError(m.conn, errors.New("message type is required"))
	default:
		r.action(ctx, m, msg)
	}
}

func (r *Registry) heartbeat(m *member, playerID string) {
	if playerID != "" {
		r.mu.Lock()
		m.heartbeat = playerID
		r.mu.Unlock()
	}
	if err := r.sendTo(m.conn, Pong{Type: TypePong, Timestamp: r.now().UnixMilli()}); err != nil {
		r.Disconnect(m.conn.ID())
	}
}

func (r *Registry) cursor(m *member, x, y float64) {
	if m.spectator() {
		return
	}
	now := r.now()

	r.mu.Lock()
	if last, ok := r.lastCursor[m.playerID]; ok && now.Sub(last) < r.opts.CursorInterval {
		r.mu.Unlock()
		return
	}
	r.lastCursor[m.playerID] = now
	targets := make([]Conn, 0, len(r.members))
	for _, other := range r.members {
		if other == m || other.mappedTo(m.playerID) {
			continue
		}
		targets = append(targets, other.conn)
	}
	r.mu.Unlock()

	msg, err := json.Marshal(CursorUpdate{
		Type:      TypeCursorUpdate,
		PlayerID:  m.playerID,
		X:         x,
		Y:         y,
		Timestamp: now.UnixMilli(),
	})
	if err != nil {
		r.logger.Warn("failed to encode cursor", zap.Error(err))
		return
	}
	r.fanOut(targets, msg)
}

func (r *Registry) action(ctx context.Context, m *member, msg Inbound) {
	if m.spectator() {
		r.sendError(m.conn, ErrSpectator)
		return
	}
	if msg.PlayerID != "" && msg.PlayerID != m.playerID {
		r.logger.Warn("action player mismatch",
			zap.String("conn_id", m.conn.ID()),
			zap.String("player_id", m.playerID),
			zap.String("claimed_player_id", msg.PlayerID),
		)
		r.sendError(m.conn, errors.New("playerId does not match connection"))
		return
	}

	err := r.handler.Submit(ctx, game.Action{
		Type:     game.ActionType(msg.Type),
		PlayerID: m.playerID,
		Data:     msg.Data,
	})
	if err != nil {
		r.sendError(m.conn, err)
	}
}

// BroadcastState sends s to every connection, spectators included.
// Connections that fail to accept the message are pruned.
func (r *Registry) BroadcastState(s *game.State) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	msg, err := json.Marshal(StateUpdate{Type: TypeStateUpdate, State: s})
	if err != nil {
		r.logger.Error("failed to encode state", zap.Error(err))
		return
	}
	r.fanOut(r.conns(), msg)
}

func (r *Registry) fanOut(targets []Conn, msg []byte) {
	for _, conn := range targets {
		if err := conn.Send(msg); err != nil {
			r.logger.Debug("send failed, pruning connection",
				zap.String("conn_id", conn.ID()),
				zap.Error(err),
			)
			r.Disconnect(conn.ID())
		}
	}
}

// Disconnect removes connID. It is safe to call more than once.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	m, ok := r.members[connID]
	if ok {
		delete(r.members, connID)
		if m.spectator() {
			r.spectators--
		}
	}
	r.mu.Unlock()

	if ok {
		m.conn.Close("disconnected")
		r.logger.Info("connection removed",
			zap.String("conn_id", connID),
			zap.String("player_id", m.playerID),
		)
	}
}

// PruneStale drops connections silent for longer than the heartbeat timeout
// and returns how many were dropped.
func (r *Registry) PruneStale() int {
	if r.opts.HeartbeatTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.opts.HeartbeatTimeout)

	r.mu.RLock()
	stale := make([]string, 0)
	for id, m := range r.members {
		if m.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.logger.Info("heartbeat timeout", zap.String("conn_id", id))
		r.Disconnect(id)
	}
	return len(stale)
}

// Close notifies every connection with game_deleted, closes them and
// refuses further connects.
func (r *Registry) Close(reason string) {
	r.close(reason, true)
}

// Shutdown closes every connection without announcing a deletion; the
// session itself survives in storage.
func (r *Registry) Shutdown(reason string) {
	r.close(reason, false)
}

// CloseIfEmpty refuses further connects when no connection is attached and
// reports whether it did.
func (r *Registry) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.members) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *Registry) close(reason string, announce bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	members := r.members
	r.members = make(map[string]*member)
	r.spectators = 0
	r.mu.Unlock()

	notice, _ := json.Marshal(Notice{Type: TypeGameDeleted})
	for _, m := range members {
		if announce {
			_ = m.conn.Send(notice)
		}
		m.conn.Close(reason)
	}
	r.logger.Info("registry closed",
		zap.Int("connections", len(members)),
		zap.String("reason", reason),
		zap.Bool("deleted", announce),
	)
}

// Stats reports the number of connections and how many are spectators.
func (r *Registry) Stats() (connections, spectators int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members), r.spectators
}

func (r *Registry) conns() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.conn)
	}
	return out
}

func (r *Registry) sendTo(conn Conn, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Send(msg)
}

func (r *Registry) sendError(conn Conn, cause error) {
	if err := r.sendTo(conn, ErrorMessage{Type: TypeError, Error: cause.Error()}); err != nil {
		r.Disconnect(conn.ID())
	}
}
