// Package session runs game sessions: one single-writer coordinator per
// session that applies actions in arrival order, persists each new snapshot
// and hands it to the connection registry for broadcast.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionEnded is returned for actions submitted after teardown.
var ErrSessionEnded = errors.New("session ended")

// Broadcaster receives every installed snapshot.
type Broadcaster interface {
	BroadcastState(s *game.State)
}

// Lifecycle is the coordinator's state machine position.
type Lifecycle int

const (
	LifecycleEmpty Lifecycle = iota
	LifecycleActive
	LifecycleTornDown
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleEmpty:
		return "empty"
	case LifecycleActive:
		return "active"
	case LifecycleTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

type request struct {
	ctx    context.Context
	action game.Action
	reply  chan error
}

// Coordinator owns one session's model. Actions are queued on a mailbox and
// applied one at a time by a goroutine that starts on demand and exits after
// IdleTimeout without work; the model survives between runs.
type Coordinator struct {
	id          string
	engine      *game.Engine
	model       *game.Model
	templates   *cards.Templates
	store       repository.Store
	broadcaster Broadcaster
	logger      *zap.Logger
	idleTimeout time.Duration
	newID       func() string
	now         func() time.Time

	mailbox chan request
	done    chan struct{}
	loop    sync.WaitGroup

	mu      sync.Mutex
	running bool
	ended   bool
}

// CoordinatorOptions configures a coordinator.
type CoordinatorOptions struct {
	Engine      *game.Engine
	Templates   *cards.Templates
	Store       repository.Store
	IdleTimeout time.Duration
	MailboxSize int
}

// NewCoordinator creates a coordinator over initial. No goroutine is started
// until the first action arrives.
func NewCoordinator(initial *game.State, opts CoordinatorOptions, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Engine == nil {
		opts.Engine = game.NewEngine(logger)
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = time.Minute
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 64
	}
	return &Coordinator{
		id:          initial.ID,
		engine:      opts.Engine,
		model:       game.NewModel(initial),
		templates:   opts.Templates,
		store:       opts.Store,
		logger:      logger.With(zap.String("session_id", initial.ID)),
		idleTimeout: opts.IdleTimeout,
		newID:       uuid.NewString,
		now:         time.Now,
		mailbox:     make(chan request, opts.MailboxSize),
		done:        make(chan struct{}),
	}
}

// SetBroadcaster attaches the registry. It must be called before the first
// Submit.
func (c *Coordinator) SetBroadcaster(b Broadcaster) {
	c.broadcaster = b
}

// ID returns the session id.
func (c *Coordinator) ID() string {
	return c.id
}

// Snapshot returns the installed state.
func (c *Coordinator) Snapshot() *game.State {
	return c.model.Snapshot()
}

// Lifecycle reports where the session is in empty, active, torn-down.
func (c *Coordinator) Lifecycle() Lifecycle {
	if c.isEnded() {
		return LifecycleTornDown
	}
	if len(c.model.Snapshot().Players) == 0 {
		return LifecycleEmpty
	}
	return LifecycleActive
}

// Running reports whether the mailbox goroutine is alive.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Join seats playerID if they are not seated yet.
func (c *Coordinator) Join(ctx context.Context, playerID, name string) error {
	data, err := json.Marshal(game.JoinGame{Name: name})
	if err != nil {
		return err
	}
	return c.Submit(ctx, game.Action{
		Type:     game.ActionJoinGame,
		PlayerID: playerID,
		Data:     data,
	})
}

// Submit queues action and waits until it has been applied or rejected.
func (c *Coordinator) Submit(ctx context.Context, action game.Action) error {
	if c.isEnded() {
		return ErrSessionEnded
	}

	req := request{ctx: ctx, action: action, reply: make(chan error, 1)}
	select {
	case c.mailbox <- req:
	case <-c.done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
	c.ensureRunning()

	select {
	case err := <-req.reply:
		return err
	case <-c.done:
		return ErrSessionEnded
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) isEnded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// ensureRunning starts the run loop unless one is alive. Callers enqueue
// first, so a loop that is about to exit sees the pending request.
func (c *Coordinator) ensureRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.ended {
		return
	}
	c.running = true
	c.loop.Add(1)
	go c.run()
}

func (c *Coordinator) run() {
	defer c.loop.Done()
	c.logger.Debug("session coordinator started")
	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case req := <-c.mailbox:
			c.handle(req)
			idle.Reset(c.idleTimeout)

		case <-idle.C:
			c.mu.Lock()
			if len(c.mailbox) > 0 {
				c.mu.Unlock()
				idle.Reset(c.idleTimeout)
				continue
			}
			c.running = false
			c.mu.Unlock()
			c.logger.Debug("session coordinator idle")
			return

		case <-c.done:
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return
		}
	}
}

func (c *Coordinator) handle(req request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- err
		return
	}

	action := req.action
	current := c.model.Snapshot()

	next, err := c.apply(req.ctx, current, action)
	if err != nil {
		if errors.Is(err, game.ErrUnknownAction) || errors.Is(err, game.ErrInvalidPayload) {
			c.logger.Warn("dropped action",
				zap.String("type", string(action.Type)),
				zap.String("player_id", action.PlayerID),
				zap.Error(err),
			)
		}
		req.reply <- err
		return
	}
	if next == current {
		req.reply <- nil
		return
	}

	if action.ID == "" {
		action.ID = c.newID()
	}
	action.Timestamp = c.now().UTC()
	next.Actions = append(next.Actions, action)

	installed := c.model.Replace(next)
	c.persist(req.ctx, installed)
	if c.broadcaster != nil {
		c.broadcaster.BroadcastState(installed)
	}

	c.logger.Debug("applied action",
		zap.String("type", string(action.Type)),
		zap.String("player_id", action.PlayerID),
		zap.Int("log_length", len(installed.Actions)),
	)
	req.reply <- nil
}

func (c *Coordinator) apply(ctx context.Context, s *game.State, action game.Action) (*game.State, error) {
	if action.Type != game.ActionImportSandboxDeck {
		return c.engine.Apply(s, action)
	}

	data, err := game.DecodeData[game.ImportSandboxDeck](action)
	if err != nil {
		return s, err
	}
	if c.templates == nil {
		return s, fmt.Errorf("%w: no deck templates configured", cards.ErrTemplateNotFound)
	}
	deck, err := c.templates.Resolve(ctx, data.TemplateIndex)
	if err != nil {
		c.logger.Warn("template resolution failed",
			zap.String("player_id", action.PlayerID),
			zap.Int("template_index", data.TemplateIndex),
			zap.Error(err),
		)
		return s, err
	}
	return c.engine.ImportTemplate(s, action.PlayerID, deck)
}

func (c *Coordinator) persist(ctx context.Context, s *game.State) {
	if c.store == nil {
		return
	}
	data, err := game.MarshalSnapshot(s)
	if err != nil {
		c.logger.Error("failed to encode snapshot", zap.Error(err))
		return
	}
	if err := c.store.Put(context.WithoutCancel(ctx), repository.SessionKey(c.id), data); err != nil {
		c.logger.Error("failed to persist snapshot", zap.Error(err))
	}
}

// Teardown ends the session and waits for an in-flight action to finish, so
// nothing is persisted after it returns. Pending and later submissions fail
// with ErrSessionEnded. It is safe to call more than once.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	close(c.done)
	c.mu.Unlock()

	c.loop.Wait()
	c.logger.Info("session torn down")
}
