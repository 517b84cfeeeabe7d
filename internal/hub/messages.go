package hub

import (
	"encoding/json"

	"github.com/QuinnsCode/qbear3-sub004/internal/game"
)

// Message types exchanged on a session connection.
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeCursorMove   = "cursor_move"
	TypeCursorUpdate = "cursor_update"
	TypeStateUpdate  = "state_update"
	TypeGameDeleted  = "game_deleted"
	TypeError        = "error"
)

// Inbound is any message a client sends. Fields not used by Type are ignored.
type Inbound struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId,omitempty"`
	X        float64         `json:"x,omitempty"`
	Y        float64         `json:"y,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// StateUpdate carries a full session snapshot.
type StateUpdate struct {
	Type  string      `json:"type"`
	State *game.State `json:"state"`
}

// Pong answers a heartbeat.
type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// CursorUpdate relays another player's pointer position.
type CursorUpdate struct {
	Type      string  `json:"type"`
	PlayerID  string  `json:"playerId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

// Notice is a message that carries only its type, such as game_deleted.
type Notice struct {
	Type string `json:"type"`
}

// ErrorMessage reports a failure to the originating connection.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
