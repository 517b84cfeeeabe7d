// Package matchmaking pairs waiting players into new sessions through one
// FIFO queue per region.
package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrStaleDeck is returned when the chosen deck is older than the
	// freshness window.
	ErrStaleDeck = errors.New("deck is too old, export it again before queueing")
	// ErrInvalidRequest is returned when a join is missing required fields.
	ErrInvalidRequest = errors.New("invalid queue request")
	// ErrUnknownRegion is returned for a region that has no queue.
	ErrUnknownRegion = errors.New("unknown region")
)

// Conn is the matchmaking connection of one queued player.
type Conn interface {
	ID() string
	Send(msg []byte) error
	Close(reason string)
}

// SessionCreator builds a game session for a pair of queued players.
type SessionCreator interface {
	CreateMatch(ctx context.Context, matchID string, players []Entry) error
}

// DeckChecker reports whether a deck can seed a match session. A nil
// error means the deck exists and resolves.
type DeckChecker interface {
	CheckDeck(ctx context.Context, deckID string) error
}

// JoinRequest is the payload of a join_queue message.
type JoinRequest struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName"`
	DeckID         string    `json:"deckId"`
	DeckName       string    `json:"deckName"`
	DeckExportedAt time.Time `json:"deckExportedAt"`
}

// Entry is one queued player. Entries are ordered by JoinedAt.
type Entry struct {
	PlayerID       string    `json:"userId"`
	Name           string    `json:"userName"`
	DeckID         string    `json:"deckId"`
	DeckName       string    `json:"deckName"`
	DeckExportedAt time.Time `json:"deckExportedAt"`
	JoinedAt       time.Time `json:"joinedAt"`

	conn        Conn
	orphanSince time.Time
}

// Connected reports whether the entry has a live connection.
func (e Entry) Connected() bool {
	return e.conn != nil
}

// Status is a player's place in the queue. Position is 1-based and zero when
// the player is not queued.
type Status struct {
	Position  int `json:"position"`
	QueueSize int `json:"queueSize"`
}

// Queue is the matchmaking coordinator of one region. A single mutex guards
// the entry list so every read-modify-write, pairing included, is atomic.
type Queue struct {
	region  string
	cfg     config.MatchmakingConfig
	store   repository.Store
	creator SessionCreator
	decks   DeckChecker
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	mu      sync.Mutex
	entries []Entry
	// claimed tracks the connections of pairs whose session is being
	// created; the value turns true when the connection drops meanwhile.
	claimed map[string]bool
}

// NewQueue creates the queue for region, restoring any persisted entries.
// Restored entries have no connection until their player reconnects. When
// decks is nil, deck ids are not checked at join.
func NewQueue(ctx context.Context, region string, cfg config.MatchmakingConfig, store repository.Store, creator SessionCreator, decks DeckChecker, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		region:  region,
		cfg:     cfg,
		store:   store,
		creator: creator,
		decks:   decks,
		logger:  logger.With(zap.String("region", region)),
		now:     time.Now,
		newID:   uuid.NewString,
		entries: make([]Entry, 0),
		claimed: make(map[string]bool),
	}

	data, err := store.Get(ctx, repository.QueueKey(region))
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load queue %s: %w", region, err)
	default:
		if err := json.Unmarshal(data, &q.entries); err != nil {
			return nil, fmt.Errorf("failed to decode queue %s: %w", region, err)
		}
		restoredAt := q.now()
		for i := range q.entries {
			q.entries[i].orphanSince = restoredAt
		}
		if len(q.entries) > 0 {
			q.logger.Info("restored queue", zap.Int("entries", len(q.entries)))
		}
	}
	return q, nil
}

// Region returns the queue's region.
func (q *Queue) Region() string {
	return q.region
}

// Join queues the player behind conn, or rebinds an existing entry to conn
// when the player is already queued. A fresh entry triggers a pairing check.
func (q *Queue) Join(ctx context.Context, conn Conn, req JoinRequest) error {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.DeckID) == "" {
		return fmt.Errorf("%w: userId and deckId are required", ErrInvalidRequest)
	}
	now := q.now()
	if req.DeckExportedAt.IsZero() || now.Sub(req.DeckExportedAt) > q.cfg.FreshnessWindow {
		q.logger.Info("stale deck rejected",
			zap.String("player_id", req.UserID),
			zap.String("deck_id", req.DeckID),
			zap.Time("deck_exported_at", req.DeckExportedAt),
		)
		return ErrStaleDeck
	}
	if req.UserName == "" {
		req.UserName = req.UserID
	}
	if q.decks != nil {
		if err := q.decks.CheckDeck(ctx, req.DeckID); err != nil {
			q.logger.Info("unusable deck rejected",
				zap.String("player_id", req.UserID),
				zap.String("deck_id", req.DeckID),
				zap.Error(err),
			)
			return fmt.Errorf("%w: deck %s: %w", ErrInvalidRequest, req.DeckID, err)
		}
	}

	q.mu.Lock()
	if i := q.indexOf(req.UserID); i >= 0 {
		q.entries[i].conn = conn
		q.entries[i].orphanSince = time.Time{}
		q.mu.Unlock()
		q.logger.Info("player reconnected to queue", zap.String("player_id", req.UserID))
		q.broadcastStatus()
		return nil
	}
	q.entries = append(q.entries, Entry{
		PlayerID:       req.UserID,
		Name:           req.UserName,
		DeckID:         req.DeckID,
		DeckName:       req.DeckName,
		DeckExportedAt: req.DeckExportedAt,
		JoinedAt:       now,
		conn:           conn,
	})
	q.persistLocked(ctx)
	size := len(q.entries)
	q.mu.Unlock()

	q.logger.Info("player joined queue",
		zap.String("player_id", req.UserID),
		zap.String("deck_id", req.DeckID),
		zap.Int("queue_size", size),
	)
	q.broadcastStatus()
	q.tryPair(ctx)
	return nil
}

// Leave removes playerID's entry. Leaving when not queued is a no-op.
func (q *Queue) Leave(ctx context.Context, playerID string) {
	q.mu.Lock()
	i := q.indexOf(playerID)
	if i < 0 {
		q.mu.Unlock()
		return
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.persistLocked(ctx)
	q.mu.Unlock()

	q.logger.Info("player left queue", zap.String("player_id", playerID))
	q.broadcastStatus()
}

// Disconnect drops every entry bound to connID. A connection whose pair is
// being created is remembered so the entry is not restored if creation fails.
func (q *Queue) Disconnect(ctx context.Context, connID string) {
	q.mu.Lock()
	if _, ok := q.claimed[connID]; ok {
		q.claimed[connID] = true
	}
	kept := q.entries[:0]
	removed := make([]string, 0)
	for _, e := range q.entries {
		if e.conn != nil && e.conn.ID() == connID {
			removed = append(removed, e.PlayerID)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	if len(removed) > 0 {
		q.persistLocked(ctx)
	}
	q.mu.Unlock()

	if len(removed) > 0 {
		q.logger.Info("queue connection dropped", zap.String("conn_id", connID), zap.Strings("player_ids", removed))
		q.broadcastStatus()
	}
}

// Status reports playerID's queue position and the queue size.
func (q *Queue) Status(playerID string) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{Position: q.indexOf(playerID) + 1, QueueSize: len(q.entries)}
}

// Entries returns a copy of the queue in FIFO order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// PruneOrphans drops restored entries whose player has not reconnected
// within the orphan timeout.
func (q *Queue) PruneOrphans(ctx context.Context) int {
	cutoff := q.now().Add(-q.cfg.OrphanTimeout)

	q.mu.Lock()
	kept := q.entries[:0]
	pruned := 0
	for _, e := range q.entries {
		if e.conn == nil && !e.orphanSince.IsZero() && !e.orphanSince.After(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	if pruned > 0 {
		q.persistLocked(ctx)
	}
	q.mu.Unlock()

	if pruned > 0 {
		q.logger.Info("pruned orphaned queue entries", zap.Int("count", pruned))
		q.broadcastStatus()
	}
	return pruned
}

// tryPair claims the two oldest connected entries in one critical section,
// then creates their session outside the lock. On failure both entries go
// back to the front of the queue in their original order.
func (q *Queue) tryPair(ctx context.Context) {
	q.mu.Lock()
	first, second := -1, -1
	for i, e := range q.entries {
		if e.conn == nil {
			continue
		}
		if first < 0 {
			first = i
		} else {
			second = i
			break
		}
	}
	if second < 0 {
		q.mu.Unlock()
		return
	}
	pair := []Entry{q.entries[first], q.entries[second]}
	q.entries = append(q.entries[:second], q.entries[second+1:]...)
	q.entries = append(q.entries[:first], q.entries[first+1:]...)
	for _, e := range pair {
		q.claimed[e.conn.ID()] = false
	}
	q.persistLocked(ctx)
	q.mu.Unlock()

	matchID := q.newID()
	createCtx := context.WithoutCancel(ctx)
	if q.cfg.CreateTimeout > 0 {
		var cancel context.CancelFunc
		createCtx, cancel = context.WithTimeout(createCtx, q.cfg.CreateTimeout)
		defer cancel()
	}

	if err := q.creator.CreateMatch(createCtx, matchID, pair); err != nil {
		q.logger.Error("failed to create match session",
			zap.String("match_id", matchID),
			zap.String("player_a", pair[0].PlayerID),
			zap.String("player_b", pair[1].PlayerID),
			zap.Error(err),
		)
		q.mu.Lock()
		restored := make([]Entry, 0, len(pair))
		for _, e := range pair {
			dropped := q.claimed[e.conn.ID()]
			delete(q.claimed, e.conn.ID())
			// Dropped connections and players who queued again are not restored.
			if dropped || q.indexOf(e.PlayerID) >= 0 {
				q.logger.Info("not restoring queue entry",
					zap.String("player_id", e.PlayerID),
					zap.Bool("disconnected", dropped),
				)
				continue
			}
			restored = append(restored, e)
		}
		q.entries = append(restored, q.entries...)
		q.persistLocked(ctx)
		q.mu.Unlock()

		for _, e := range restored {
			q.send(e.conn, ErrorMessage{Type: TypeError, Error: "failed to create match, you are still queued"})
		}
		q.broadcastStatus()
		return
	}

	q.mu.Lock()
	for _, e := range pair {
		delete(q.claimed, e.conn.ID())
	}
	q.mu.Unlock()

	q.logger.Info("match found",
		zap.String("match_id", matchID),
		zap.String("player_a", pair[0].PlayerID),
		zap.String("player_b", pair[1].PlayerID),
	)
	q.send(pair[0].conn, MatchFound{Type: TypeMatchFound, MatchID: matchID, OpponentName: pair[1].Name})
	q.send(pair[1].conn, MatchFound{Type: TypeMatchFound, MatchID: matchID, OpponentName: pair[0].Name})
	for _, e := range pair {
		conn := e.conn
		time.AfterFunc(q.cfg.CloseDelay, func() { conn.Close("match found") })
	}
	q.broadcastStatus()
}

func (q *Queue) indexOf(playerID string) int {
	for i, e := range q.entries {
		if e.PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (q *Queue) persistLocked(ctx context.Context) {
	data, err := json.Marshal(q.entries)
	if err != nil {
		q.logger.Error("failed to encode queue", zap.Error(err))
		return
	}
	if err := q.store.Put(context.WithoutCancel(ctx), repository.QueueKey(q.region), data); err != nil {
		q.logger.Error("failed to persist queue", zap.Error(err))
	}
}

// broadcastStatus pushes queue_status to every connected entry.
func (q *Queue) broadcastStatus() {
	q.mu.Lock()
	type target struct {
		conn     Conn
		position int
	}
	targets := make([]target, 0, len(q.entries))
	for i, e := range q.entries {
		if e.conn != nil {
			targets = append(targets, target{conn: e.conn, position: i + 1})
		}
	}
	size := len(q.entries)
	q.mu.Unlock()

	for _, t := range targets {
		q.send(t.conn, QueueStatus{Type: TypeQueueStatus, Position: t.position, QueueSize: size})
	}
}

func (q *Queue) send(conn Conn, v any) {
	if conn == nil {
		return
	}
	msg, err := json.Marshal(v)
	if err != nil {
		q.logger.Error("failed to encode message", zap.Error(err))
		return
	}
	if err := conn.Send(msg); err != nil {
		q.logger.Debug("matchmaking send failed", zap.String("conn_id", conn.ID()), zap.Error(err))
	}
}
