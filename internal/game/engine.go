package game

import (
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine computes next states. Every operation takes the current snapshot and
// returns either a new snapshot or the unchanged input together with a
// *RejectedError; the input is never mutated.
type Engine struct {
	logger *zap.Logger
	intn   func(n int) int
	newID  func() string
}

// NewEngine creates an engine using the global random source.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		intn:   rand.IntN,
		newID:  uuid.NewString,
	}
}

// WithRand makes shuffles draw from r.
func (e *Engine) WithRand(r *rand.Rand) *Engine {
	e.intn = r.IntN
	return e
}

// MoveCard is the payload of a move_card action.
type MoveCard struct {
	CardID     string    `json:"cardId"`
	FromZone   Zone      `json:"fromZone"`
	ToZone     Zone      `json:"toZone"`
	ToPosition string    `json:"toPosition,omitempty"` // top or bottom; library only
	Position   *Position `json:"position,omitempty"`
	IsFaceUp   *bool     `json:"isFaceUp,omitempty"`
}

const (
	placementOriginX = 40.0
	placementOriginY = 40.0
	placementStep    = 30.0
	placementPerRow  = 10
)

// AddPlayer seats a player with empty zones. Re-adding an existing player
// returns s unchanged unless the display name changed.
func (e *Engine) AddPlayer(s *State, playerID, name string) (*State, error) {
	if playerID == "" {
		return e.reject(s, "join_game", playerID, "player id is required")
	}
	if name == "" {
		name = playerID
	}
	if existing := s.Player(playerID); existing != nil {
		if existing.Name == name {
			return s, nil
		}
		next := s.Clone()
		next.Player(playerID).Name = name
		return next, nil
	}

	next := s.Clone()
	next.Players = append(next.Players, &Player{
		ID:    playerID,
		Name:  name,
		Zones: NewZones(),
	})
	return next, nil
}

// Move relocates one card between two of the acting player's zones.
func (e *Engine) Move(s *State, playerID string, m MoveCard) (*State, error) {
	const op = "move_card"

	if !m.FromZone.Valid() || !m.ToZone.Valid() {
		return e.reject(s, op, playerID, "unknown zone",
			zap.String("from_zone", string(m.FromZone)), zap.String("to_zone", string(m.ToZone)))
	}
	if m.ToPosition != "" && m.ToPosition != "top" && m.ToPosition != "bottom" {
		return e.reject(s, op, playerID, "toPosition must be top or bottom")
	}
	player := s.Player(playerID)
	if player == nil {
		return e.reject(s, op, playerID, "player not found")
	}
	if _, ok := s.Cards[m.CardID]; !ok {
		return e.reject(s, op, playerID, "card not found", zap.String("card_id", m.CardID))
	}
	if !slices.Contains(player.Zones.Get(m.FromZone), m.CardID) {
		return e.reject(s, op, playerID, "card not in source zone",
			zap.String("card_id", m.CardID), zap.String("from_zone", string(m.FromZone)))
	}

	next := s.Clone()
	p := next.Player(playerID)
	card := next.Cards[m.CardID]

	// Repositioning on the battlefield keeps tap state.
	if m.FromZone == ZoneBattlefield && m.ToZone == ZoneBattlefield {
		if m.Position != nil {
			pos := *m.Position
			card.Position = &pos
		}
		if m.IsFaceUp != nil {
			card.IsFaceUp = *m.IsFaceUp
		}
		return next, nil
	}

	p.Zones.Set(m.FromZone, removeID(p.Zones.Get(m.FromZone), m.CardID))

	placementIndex := len(p.Zones.Battlefield)
	target := p.Zones.Get(m.ToZone)
	switch m.ToZone {
	case ZoneLibrary:
		if m.ToPosition == "top" {
			target = prependIDs(target, m.CardID)
		} else {
			target = append(target, m.CardID)
		}
	case ZoneGraveyard:
		target = prependIDs(target, m.CardID)
	default:
		target = append(target, m.CardID)
	}
	p.Zones.Set(m.ToZone, target)

	card.Zone = m.ToZone
	card.IsTapped = false
	card.Rotation = 0
	switch m.ToZone {
	case ZoneLibrary:
		card.IsFaceUp = false
		card.Position = nil
	case ZoneBattlefield:
		card.IsFaceUp = true
		if m.IsFaceUp != nil {
			card.IsFaceUp = *m.IsFaceUp
		}
		if m.Position != nil {
			pos := *m.Position
			card.Position = &pos
		} else {
			card.Position = defaultPlacement(placementIndex)
		}
	default:
		card.IsFaceUp = true
		card.Position = nil
	}

	e.logger.Debug("moved card",
		zap.String("session_id", s.ID),
		zap.String("player_id", playerID),
		zap.String("card_id", m.CardID),
		zap.String("from_zone", string(m.FromZone)),
		zap.String("to_zone", string(m.ToZone)),
	)
	return next, nil
}

// Draw moves the top count library cards, in order, to the end of the hand.
func (e *Engine) Draw(s *State, playerID string, count int) (*State, error) {
	const op = "draw_cards"

	player := s.Player(playerID)
	if player == nil {
		return e.reject(s, op, playerID, "player not found")
	}
	if count < 1 {
		return e.reject(s, op, playerID, "count must be positive", zap.Int("count", count))
	}
	if count > len(player.Zones.Library) {
		return e.reject(s, op, playerID, "not enough cards in library",
			zap.Int("count", count), zap.Int("library", len(player.Zones.Library)))
	}

	next := s.Clone()
	p := next.Player(playerID)
	drawn := p.Zones.Library[:count]
	p.Zones.Library = cloneIDs(p.Zones.Library[count:])
	p.Zones.Hand = append(p.Zones.Hand, drawn...)

	for _, id := range drawn {
		card := next.Cards[id]
		card.Zone = ZoneHand
		card.IsFaceUp = true
		card.IsTapped = false
		card.Rotation = 0
		card.Position = nil
	}
	return next, nil
}

// Shuffle replaces the library order with a uniform random permutation.
func (e *Engine) Shuffle(s *State, playerID string) (*State, error) {
	if s.Player(playerID) == nil {
		return e.reject(s, "shuffle_library", playerID, "player not found")
	}

	next := s.Clone()
	p := next.Player(playerID)
	e.shuffle(p.Zones.Library)
	return next, nil
}

// Mill moves up to count cards from the top of the library to the top of
// the graveyard.
func (e *Engine) Mill(s *State, playerID string, count int) (*State, error) {
	const op = "mill"

	player := s.Player(playerID)
	if player == nil {
		return e.reject(s, op, playerID, "player not found")
	}
	if count < 1 {
		return e.reject(s, op, playerID, "count must be positive", zap.Int("count", count))
	}
	if count > len(player.Zones.Library) {
		count = len(player.Zones.Library)
	}
	if count == 0 {
		return e.reject(s, op, playerID, "library is empty")
	}

	next := s.Clone()
	p := next.Player(playerID)
	milled := p.Zones.Library[:count]
	p.Zones.Library = cloneIDs(p.Zones.Library[count:])

	graveyard := make([]string, 0, len(p.Zones.Graveyard)+count)
	for i := len(milled) - 1; i >= 0; i-- {
		graveyard = append(graveyard, milled[i])
	}
	p.Zones.Graveyard = append(graveyard, p.Zones.Graveyard...)

	for _, id := range milled {
		card := next.Cards[id]
		card.Zone = ZoneGraveyard
		card.IsFaceUp = true
		card.IsTapped = false
		card.Rotation = 0
		card.Position = nil
	}
	return next, nil
}

// Tap toggles the tapped flag of a battlefield card.
func (e *Engine) Tap(s *State, playerID, cardID string) (*State, error) {
	const op = "tap_card"

	player := s.Player(playerID)
	if player == nil {
		return e.reject(s, op, playerID, "player not found")
	}
	if !slices.Contains(player.Zones.Battlefield, cardID) {
		return e.reject(s, op, playerID, "card not on battlefield", zap.String("card_id", cardID))
	}

	next := s.Clone()
	card := next.Cards[cardID]
	card.IsTapped = !card.IsTapped
	card.Rotation = 0
	if card.IsTapped {
		card.Rotation = 90
	}
	return next, nil
}

// Flip toggles a card face up or down. Library cards stay face down.
func (e *Engine) Flip(s *State, playerID, cardID string) (*State, error) {
	const op = "flip_card"

	player := s.Player(playerID)
	if player == nil {
		return e.reject(s, op, playerID, "player not found")
	}
	card, ok := s.Cards[cardID]
	if !ok || card.OwnerID != playerID {
		return e.reject(s, op, playerID, "card not found", zap.String("card_id", cardID))
	}
	if card.Zone == ZoneLibrary {
		return e.reject(s, op, playerID, "library cards cannot be flipped", zap.String("card_id", cardID))
	}

	next := s.Clone()
	next.Cards[cardID].IsFaceUp = !card.IsFaceUp
	return next, nil
}

// UntapAll untaps every battlefield card of the player.
func (e *Engine) UntapAll(s *State, playerID string) (*State, error) {
	player := s.Player(playerID)
	if player == nil {
		return e.reject(s, "untap_all", playerID, "player not found")
	}

	tapped := false
	for _, id := range player.Zones.Battlefield {
		if s.Cards[id].IsTapped {
			tapped = true
			break
		}
	}
	if !tapped {
		return s, nil
	}

	next := s.Clone()
	for _, id := range next.Player(playerID).Zones.Battlefield {
		card := next.Cards[id]
		card.IsTapped = false
		card.Rotation = 0
	}
	return next, nil
}

func (e *Engine) shuffle(ids []string) {
	fisherYates(ids, e.intn)
}

// fisherYates permutes items in place uniformly at random.
func fisherYates[T any](items []T, intn func(n int) int) {
	for i := len(items) - 1; i > 0; i-- {
		j := intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

func (e *Engine) reject(s *State, op, playerID, reason string, fields ...zap.Field) (*State, error) {
	logFields := append([]zap.Field{
		zap.String("session_id", s.ID),
		zap.String("op", op),
		zap.String("player_id", playerID),
		zap.String("reason", reason),
	}, fields...)
	e.logger.Warn("rejected action", logFields...)

	return s, &RejectedError{Op: op, Reason: reason}
}

func defaultPlacement(index int) *Position {
	return &Position{
		X: placementOriginX + float64(index%placementPerRow)*placementStep,
		Y: placementOriginY + float64(index/placementPerRow)*placementStep,
	}
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func prependIDs(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, id)
	return append(out, ids...)
}
