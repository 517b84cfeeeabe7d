package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/config"
	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"github.com/QuinnsCode/qbear3-sub004/internal/hub"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound is returned when no live or persisted session exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating an id that is already taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrInvalidID is returned for an empty or malformed session id.
	ErrInvalidID = errors.New("invalid session id")
)

// Session pairs a coordinator with its connection registry.
type Session struct {
	Coordinator *Coordinator
	Registry    *hub.Registry
	CreatedAt   time.Time
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.Coordinator.ID()
}

// Summary is a read-only view of a live session.
type Summary struct {
	ID          string    `json:"id"`
	Lifecycle   string    `json:"lifecycle"`
	Players     []string  `json:"players"`
	Connections int       `json:"connections"`
	Spectators  int       `json:"spectators"`
	Actions     int       `json:"actions"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary describes s.
func (s *Session) Summary() Summary {
	state := s.Coordinator.Snapshot()
	players := make([]string, 0, len(state.Players))
	for _, p := range state.Players {
		players = append(players, p.ID)
	}
	conns, spectators := s.Registry.Stats()
	return Summary{
		ID:          state.ID,
		Lifecycle:   s.Coordinator.Lifecycle().String(),
		Players:     players,
		Connections: conns,
		Spectators:  spectators,
		Actions:     len(state.Actions),
		UpdatedAt:   state.UpdatedAt,
	}
}

func (s *Session) lastActive() time.Time {
	updated := s.Coordinator.Snapshot().UpdatedAt
	if updated.After(s.CreatedAt) {
		return updated
	}
	return s.CreatedAt
}

// Seat is one player placed into a match session.
type Seat struct {
	PlayerID string
	Name     string
	DeckID   string
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Engine    *game.Engine
	Store     repository.Store
	Templates *cards.Templates
	Decks     *cards.DeckStore
}

// Manager creates, hydrates and tears down sessions.
type Manager struct {
	cfg    config.SessionConfig
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg config.SessionConfig, deps Deps, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Engine == nil {
		deps.Engine = game.NewEngine(logger)
	}
	if deps.Store == nil {
		deps.Store = repository.NewMemoryStore()
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts an empty session under a caller-chosen id.
func (m *Manager) Create(ctx context.Context, id string) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	if _, err := m.deps.Store.Get(ctx, repository.SessionKey(id)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check session %s: %w", id, err)
	}

	sess := m.build(game.NewState(id))
	m.sessions[id] = sess
	m.logger.Info("session created", zap.String("session_id", id))
	return sess, nil
}

// Get returns a live session, hydrating it from storage if needed.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[id]; ok {
		return sess, nil
	}

	state, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	sess = m.build(state)
	m.sessions[id] = sess
	m.logger.Info("session hydrated",
		zap.String("session_id", id),
		zap.Int("players", len(state.Players)),
		zap.Int("actions", len(state.Actions)),
	)
	return sess, nil
}

// Open returns the session id, creating it when it does not exist.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	sess, err := m.Get(ctx, id)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	sess, err = m.Create(ctx, id)
	if errors.Is(err, ErrSessionExists) {
		return m.Get(ctx, id)
	}
	return sess, err
}

func (m *Manager) load(ctx context.Context, id string) (*game.State, error) {
	data, err := m.deps.Store.Get(ctx, repository.SessionKey(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	state, err := game.UnmarshalSnapshot(data)
	if err != nil {
		m.logger.Error("refusing corrupt snapshot", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}
	if state.ID != id {
		return nil, fmt.Errorf("snapshot under %s belongs to session %s", id, state.ID)
	}
	return state, nil
}

func (m *Manager) build(initial *game.State) *Session {
	coord := NewCoordinator(initial, CoordinatorOptions{
		Engine:      m.deps.Engine,
		Templates:   m.deps.Templates,
		Store:       m.deps.Store,
		IdleTimeout: m.cfg.IdleTimeout,
		MailboxSize: m.cfg.MailboxSize,
	}, m.logger)
	registry := hub.NewRegistry(initial.ID, coord, hub.Options{
		HeartbeatTimeout: m.cfg.HeartbeatTimeout,
		CursorInterval:   m.cfg.CursorInterval,
	}, m.logger)
	coord.SetBroadcaster(registry)

	return &Session{
		Coordinator: coord,
		Registry:    registry,
		CreatedAt:   m.now().UTC(),
	}
}

// Teardown notifies every connection, ends the coordinator and deletes the
// persisted snapshot. The session leaves the map and storage under one lock
// so a concurrent Get cannot hydrate it again.
func (m *Manager) Teardown(ctx context.Context, id string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	sess.Registry.Close("session ended")
	sess.Coordinator.Teardown()

	m.mu.Lock()
	if m.sessions[id] == sess {
		delete(m.sessions, id)
	}
	err = m.deps.Store.Delete(ctx, repository.SessionKey(id))
	m.mu.Unlock()

	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	m.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// CheckDeck reports whether deckID is stored and resolves to at least one
// card, so matchmaking can refuse it before a pair is formed.
func (m *Manager) CheckDeck(ctx context.Context, deckID string) error {
	if m.deps.Decks == nil {
		return errors.New("no deck store configured")
	}
	deck, err := m.deps.Decks.Resolve(ctx, deckID)
	if err != nil {
		return err
	}
	if len(deck.Definitions) == 0 {
		return fmt.Errorf("%w: no card in deck %s resolves", game.ErrInvalidDeck, deckID)
	}
	return nil
}

// CreateMatch creates session matchID, seats every player and imports their
// stored decks. On any failure the half-built session is torn down.
func (m *Manager) CreateMatch(ctx context.Context, matchID string, seats []Seat) error {
	if m.deps.Decks == nil {
		return errors.New("no deck store configured")
	}

	sess, err := m.Create(ctx, matchID)
	if err != nil {
		return err
	}

	if err := m.seat(ctx, sess, seats); err != nil {
		if tdErr := m.Teardown(context.WithoutCancel(ctx), matchID); tdErr != nil {
			m.logger.Error("failed to clean up match session", zap.String("session_id", matchID), zap.Error(tdErr))
		}
		return fmt.Errorf("failed to seed match %s: %w", matchID, err)
	}

	m.logger.Info("match session created",
		zap.String("session_id", matchID),
		zap.Int("players", len(seats)),
	)
	return nil
}

func (m *Manager) seat(ctx context.Context, sess *Session, seats []Seat) error {
	for _, seat := range seats {
		deck, err := m.deps.Decks.Resolve(ctx, seat.DeckID)
		if err != nil {
			return err
		}
		if err := sess.Coordinator.Join(ctx, seat.PlayerID, seat.Name); err != nil {
			return err
		}

		data, err := json.Marshal(game.DeckImport{
			DeckList:    deck.Text,
			DeckName:    deck.Name,
			Definitions: deck.Definitions,
		})
		if err != nil {
			return err
		}
		if err := sess.Coordinator.Submit(ctx, game.Action{
			Type:     game.ActionImportDeck,
			PlayerID: seat.PlayerID,
			Data:     data,
		}); err != nil {
			return err
		}
	}
	return nil
}

// List summarises every live session ordered by id.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReapStale prunes heartbeat-expired connections across every session.
func (m *Manager) ReapStale() int {
	m.mu.RLock()
	registries := make([]*hub.Registry, 0, len(m.sessions))
	for _, sess := range m.sessions {
		registries = append(registries, sess.Registry)
	}
	m.mu.RUnlock()

	total := 0
	for _, r := range registries {
		total += r.PruneStale()
	}
	return total
}

// EvictIdle drops sessions with no connections whose coordinator has been
// quiet for IdleTimeout. Snapshots stay in storage and the next Get hydrates
// the session again.
func (m *Manager) EvictIdle() int {
	idle := m.cfg.IdleTimeout
	if idle <= 0 {
		idle = time.Minute
	}
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	evicted := make([]*Session, 0)
	for id, sess := range m.sessions {
		if sess.Coordinator.Running() || sess.lastActive().After(cutoff) {
			continue
		}
		if !sess.Registry.CloseIfEmpty() {
			continue
		}
		delete(m.sessions, id)
		evicted = append(evicted, sess)
	}
	m.mu.Unlock()

	for _, sess := range evicted {
		sess.Coordinator.Teardown()
		m.logger.Debug("session evicted", zap.String("session_id", sess.ID()))
	}
	return len(evicted)
}

// Run reaps stale connections and evicts idle sessions every ReapInterval
// until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.ReapInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.ReapStale(); n > 0 {
				m.logger.Info("reaped stale connections", zap.Int("count", n))
			}
			if n := m.EvictIdle(); n > 0 {
				m.logger.Info("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Shutdown closes every connection and stops the coordinators while keeping
// persisted snapshots for the next process.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Registry.Shutdown("server shutting down")
		sess.Coordinator.Teardown()
	}
	m.logger.Info("session manager stopped", zap.Int("sessions", len(sessions)))
}

func validateID(id string) error {
	if id == "" || len(id) > 128 || strings.ContainsAny(id, " /\\?#") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
