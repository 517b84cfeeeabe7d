package matchmaking

import "encoding/json"

// Message types exchanged on a matchmaking connection.
const (
	TypeJoinQueue   = "join_queue"
	TypeLeaveQueue  = "leave_queue"
	TypeQueueStatus = "queue_status"
	TypeMatchFound  = "match_found"
	TypeError       = "error"
)

// Inbound is a client message; JoinRequest fields are read for join_queue.
type Inbound struct {
	Type string `json:"type"`
	JoinRequest
}

// QueueStatus reports the receiver's queue position.
type QueueStatus struct {
	Type      string `json:"type"`
	Position  int    `json:"position"`
	QueueSize int    `json:"queueSize"`
}

// MatchFound announces the new session.
type MatchFound struct {
	Type         string `json:"type"`
	MatchID      string `json:"matchId"`
	OpponentName string `json:"opponentName"`
}

// ErrorMessage reports a failure to the receiving connection.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// DecodeInbound parses one client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, err
	}
	return msg, nil
}
