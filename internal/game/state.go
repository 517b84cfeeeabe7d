// Package game holds the session state model and the pure engine that
// moves card instances between zones.
package game

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
)

// Zone names one of the six card locations a player owns.
type Zone string

const (
	ZoneLibrary     Zone = "library"
	ZoneHand        Zone = "hand"
	ZoneBattlefield Zone = "battlefield"
	ZoneGraveyard   Zone = "graveyard"
	ZoneExile       Zone = "exile"
	ZoneCommand     Zone = "command"
)

// AllZones lists every zone in display order.
var AllZones = []Zone{ZoneLibrary, ZoneHand, ZoneBattlefield, ZoneGraveyard, ZoneExile, ZoneCommand}

// Valid reports whether z is one of the six known zones.
func (z Zone) Valid() bool {
	switch z {
	case ZoneLibrary, ZoneHand, ZoneBattlefield, ZoneGraveyard, ZoneExile, ZoneCommand:
		return true
	}
	return false
}

// Position is a battlefield coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Card is one physical copy of a card definition within a session.
// Position is non-nil if and only if Zone is ZoneBattlefield.
type Card struct {
	ID           string    `json:"id"`
	DefinitionID string    `json:"definitionId"`
	OwnerID      string    `json:"ownerId"`
	Zone         Zone      `json:"zone"`
	IsFaceUp     bool      `json:"isFaceUp"`
	IsTapped     bool      `json:"isTapped"`
	Rotation     int       `json:"rotation"`
	Position     *Position `json:"position,omitempty"`
}

// Zones holds a player's ordered card-instance ids per zone. Index 0 of the
// library is its top card; index 0 of the graveyard is the most recent.
type Zones struct {
	Library     []string `json:"library"`
	Hand        []string `json:"hand"`
	Battlefield []string `json:"battlefield"`
	Graveyard   []string `json:"graveyard"`
	Exile       []string `json:"exile"`
	Command     []string `json:"command"`
}

// NewZones returns six empty zones.
func NewZones() Zones {
	return Zones{
		Library:     []string{},
		Hand:        []string{},
		Battlefield: []string{},
		Graveyard:   []string{},
		Exile:       []string{},
		Command:     []string{},
	}
}

// Get returns the id list for zone z.
func (z *Zones) Get(zone Zone) []string {
	switch zone {
	case ZoneLibrary:
		return z.Library
	case ZoneHand:
		return z.Hand
	case ZoneBattlefield:
		return z.Battlefield
	case ZoneGraveyard:
		return z.Graveyard
	case ZoneExile:
		return z.Exile
	case ZoneCommand:
		return z.Command
	}
	return nil
}

// Set replaces the id list for zone z.
func (z *Zones) Set(zone Zone, ids []string) {
	switch zone {
	case ZoneLibrary:
		z.Library = ids
	case ZoneHand:
		z.Hand = ids
	case ZoneBattlefield:
		z.Battlefield = ids
	case ZoneGraveyard:
		z.Graveyard = ids
	case ZoneExile:
		z.Exile = ids
	case ZoneCommand:
		z.Command = ids
	}
}

func (z Zones) clone() Zones {
	return Zones{
		Library:     cloneIDs(z.Library),
		Hand:        cloneIDs(z.Hand),
		Battlefield: cloneIDs(z.Battlefield),
		Graveyard:   cloneIDs(z.Graveyard),
		Exile:       cloneIDs(z.Exile),
		Command:     cloneIDs(z.Command),
	}
}

// DeckInfo records the deck a player's cards were imported from.
type DeckInfo struct {
	Name        string             `json:"name"`
	RawText     string             `json:"rawText"`
	Commander   string             `json:"commander,omitempty"`
	Definitions []cards.Definition `json:"definitions"`
	ImportedAt  time.Time          `json:"importedAt"`
}

// Player is one seat in a session.
type Player struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Zones Zones     `json:"zones"`
	Deck  *DeckInfo `json:"deck,omitempty"`
}

// ActionType discriminates Action payloads.
type ActionType string

const (
	ActionJoinGame          ActionType = "join_game"
	ActionMoveCard          ActionType = "move_card"
	ActionDrawCards         ActionType = "draw_cards"
	ActionShuffleLibrary    ActionType = "shuffle_library"
	ActionMill              ActionType = "mill"
	ActionImportDeck        ActionType = "import_deck"
	ActionImportSandboxDeck ActionType = "import_sandbox_deck"
	ActionTapCard           ActionType = "tap_card"
	ActionFlipCard          ActionType = "flip_card"
	ActionUntapAll          ActionType = "untap_all"
)

// Action is one entry of the append-only action log. Once logged it is never
// modified.
type Action struct {
	ID        string          `json:"id"`
	Type      ActionType      `json:"type"`
	PlayerID  string          `json:"playerId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// State is the complete snapshot of one session. Once installed in a Model a
// State is never mutated; transitions produce a new State.
type State struct {
	ID        string           `json:"id"`
	Players   []*Player        `json:"players"`
	Cards     map[string]*Card `json:"cards"`
	Actions   []Action         `json:"actions"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// NewState creates an empty session snapshot.
func NewState(id string) *State {
	return &State{
		ID:      id,
		Players: make([]*Player, 0),
		Cards:   make(map[string]*Card),
		Actions: make([]Action, 0),
	}
}

// Player returns the player with id, or nil.
func (s *State) Player(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Clone returns a deep copy of s. Action payloads are shared since logged
// actions are immutable.
func (s *State) Clone() *State {
	next := &State{
		ID:        s.ID,
		Players:   make([]*Player, len(s.Players)),
		Cards:     make(map[string]*Card, len(s.Cards)),
		Actions:   make([]Action, len(s.Actions)),
		UpdatedAt: s.UpdatedAt,
	}
	for i, p := range s.Players {
		cp := &Player{
			ID:    p.ID,
			Name:  p.Name,
			Zones: p.Zones.clone(),
		}
		if p.Deck != nil {
			deck := *p.Deck
			deck.Definitions = append([]cards.Definition(nil), p.Deck.Definitions...)
			cp.Deck = &deck
		}
		next.Players[i] = cp
	}
	for id, c := range s.Cards {
		cc := *c
		if c.Position != nil {
			pos := *c.Position
			cc.Position = &pos
		}
		next.Cards[id] = &cc
	}
	copy(next.Actions, s.Actions)
	return next
}

// Validate checks the card-accounting invariants: every card sits in exactly
// one zone list of exactly its owner, the list agrees with the card's Zone,
// every listed id exists, and a card has a position iff it is on the
// battlefield.
func (s *State) Validate() error {
	seen := make(map[string]string, len(s.Cards))
	for i, p := range s.Players {
		if p == nil {
			return fmt.Errorf("player %d is null", i)
		}
		for _, zone := range AllZones {
			for _, id := range p.Zones.Get(zone) {
				if where, dup := seen[id]; dup {
					return fmt.Errorf("card %s listed in %s and %s/%s", id, where, p.ID, zone)
				}
				seen[id] = fmt.Sprintf("%s/%s", p.ID, zone)

				card, ok := s.Cards[id]
				if !ok || card == nil {
					return fmt.Errorf("card %s in %s/%s has no instance", id, p.ID, zone)
				}
				if card.OwnerID != p.ID {
					return fmt.Errorf("card %s owned by %s listed under %s", id, card.OwnerID, p.ID)
				}
				if card.Zone != zone {
					return fmt.Errorf("card %s records zone %s but is listed in %s", id, card.Zone, zone)
				}
				if (card.Position != nil) != (zone == ZoneBattlefield) {
					return fmt.Errorf("card %s in %s has position=%t", id, zone, card.Position != nil)
				}
			}
		}
	}
	for id := range s.Cards {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("card %s is not in any zone", id)
		}
	}
	return nil
}

func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
