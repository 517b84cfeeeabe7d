package game

import (
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/decklist"
	"go.uber.org/zap"
)

// DeckImport is the payload of an import_deck action: a raw deck list plus
// the definitions its names resolve against.
type DeckImport struct {
	DeckList    string             `json:"deckList"`
	DeckName    string             `json:"deckName,omitempty"`
	Definitions []cards.Definition `json:"cardData"`
}

// ImportDeck replaces every card the player owns with fresh instances built
// from the deck list. The new cards are shuffled; a resolvable commander goes
// to the command zone face up and the rest becomes the library. All other
// zones of the player are emptied. Cards of other players are untouched.
func (e *Engine) ImportDeck(s *State, playerID string, deck DeckImport) (*State, error) {
	const op = "import_deck"

	if s.Player(playerID) == nil {
		return e.reject(s, op, playerID, "player not found")
	}

	parsed := decklist.Parse(deck.DeckList)
	if len(parsed.Errors) > 0 {
		e.logger.Warn("deck list parse failed",
			zap.String("session_id", s.ID),
			zap.String("player_id", playerID),
			zap.Strings("errors", parsed.Errors),
		)
		return s, &DeckError{Problems: parsed.Errors}
	}
	if len(parsed.Cards) == 0 {
		return s, &DeckError{Problems: []string{"deck list is empty"}}
	}

	index := cards.NewIndex(deck.Definitions)
	instances := make([]*Card, 0, parsed.Total())
	skipped := make([]string, 0)
	for _, entry := range parsed.Cards {
		def, ok := index.Resolve(entry.Name)
		if !ok {
			skipped = append(skipped, entry.Name)
			continue
		}
		for i := 0; i < entry.Quantity; i++ {
			instances = append(instances, &Card{
				ID:           e.newID(),
				DefinitionID: def.ID,
				OwnerID:      playerID,
				Zone:         ZoneLibrary,
			})
		}
	}
	if len(skipped) > 0 {
		e.logger.Warn("skipped unresolved cards",
			zap.String("session_id", s.ID),
			zap.String("player_id", playerID),
			zap.Strings("names", skipped),
		)
	}
	if len(instances) == 0 {
		return s, &DeckError{Problems: []string{"no card in the deck list could be resolved"}}
	}

	fisherYates(instances, e.intn)

	var commander *Card
	if parsed.Commander != "" {
		if def, ok := index.Resolve(parsed.Commander); ok {
			for i, c := range instances {
				if c.DefinitionID == def.ID {
					commander = c
					instances = append(instances[:i], instances[i+1:]...)
					break
				}
			}
		}
		if commander == nil {
			e.logger.Warn("commander not found in deck",
				zap.String("session_id", s.ID),
				zap.String("player_id", playerID),
				zap.String("commander", parsed.Commander),
			)
		}
	}

	next := s.Clone()
	for id, c := range next.Cards {
		if c.OwnerID == playerID {
			delete(next.Cards, id)
		}
	}

	zones := NewZones()
	for _, c := range instances {
		next.Cards[c.ID] = c
		zones.Library = append(zones.Library, c.ID)
	}
	if commander != nil {
		commander.Zone = ZoneCommand
		commander.IsFaceUp = true
		next.Cards[commander.ID] = commander
		zones.Command = append(zones.Command, commander.ID)
	}

	name := deck.DeckName
	if name == "" {
		name = "Imported deck"
	}
	p := next.Player(playerID)
	p.Zones = zones
	p.Deck = &DeckInfo{
		Name:        name,
		RawText:     deck.DeckList,
		Commander:   parsed.Commander,
		Definitions: append([]cards.Definition(nil), deck.Definitions...),
		ImportedAt:  time.Now().UTC(),
	}

	e.logger.Info("imported deck",
		zap.String("session_id", s.ID),
		zap.String("player_id", playerID),
		zap.String("deck_name", name),
		zap.Int("cards", len(instances)),
		zap.Bool("has_commander", commander != nil),
	)
	return next, nil
}

// ImportTemplate seeds the player from an already resolved template deck.
func (e *Engine) ImportTemplate(s *State, playerID string, deck cards.ResolvedDeck) (*State, error) {
	return e.ImportDeck(s, playerID, DeckImport{
		DeckList:    deck.Text,
		DeckName:    deck.Name,
		Definitions: deck.Definitions,
	})
}
