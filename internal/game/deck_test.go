package game_test

import (
	"context"
	"testing"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atraxaDeck(t *testing.T) cards.ResolvedDeck {
	t.Helper()
	templates := cards.NewTemplates(nil, cards.NewMemoryCatalog(cards.BuiltinDefinitions()))
	deck, err := templates.Resolve(context.Background(), 0)
	require.NoError(t, err)
	return deck
}

func TestImportReplacesOnlyOwnersCards(t *testing.T) {
	e := newEngine(t)
	s := seeded(t, e, "10 Forest")

	s, err := e.Draw(s, "bob", 2)
	require.NoError(t, err)
	bobBefore := *s.Player("bob")
	oldAlice := make(map[string]bool)
	for id, c := range s.Cards {
		if c.OwnerID == "alice" {
			oldAlice[id] = true
		}
	}
	bobCards := make(map[string]game.Card)
	for id, c := range s.Cards {
		if c.OwnerID == "bob" {
			bobCards[id] = *c
		}
	}

	next, err := e.ImportDeck(s, "alice", game.DeckImport{
		DeckList:    "6 Island\n2 Counterspell",
		DeckName:    "Blue",
		Definitions: cards.BuiltinDefinitions(),
	})
	require.NoError(t, err)
	require.NoError(t, next.Validate())

	for id := range oldAlice {
		assert.NotContains(t, next.Cards, id)
	}
	alice := next.Player("alice")
	assert.Len(t, alice.Zones.Library, 8)
	assert.Empty(t, alice.Zones.Hand)
	assert.Empty(t, alice.Zones.Command)
	require.NotNil(t, alice.Deck)
	assert.Equal(t, "Blue", alice.Deck.Name)

	assert.Equal(t, bobBefore.Zones, next.Player("bob").Zones)
	for id, c := range bobCards {
		require.Contains(t, next.Cards, id)
		assert.Equal(t, c, *next.Cards[id])
	}
}

func TestImportCommanderSeparation(t *testing.T) {
	e := newEngine(t)
	s, err := e.AddPlayer(game.NewState("table-1"), "alice", "Alice")
	require.NoError(t, err)

	next, err := e.ImportTemplate(s, "alice", atraxaDeck(t))
	require.NoError(t, err)
	require.NoError(t, next.Validate())

	alice := next.Player("alice")
	require.Len(t, alice.Zones.Command, 1)
	commander := next.Cards[alice.Zones.Command[0]]
	assert.Equal(t, "2xm-190", commander.DefinitionID)
	assert.True(t, commander.IsFaceUp)
	assert.Equal(t, game.ZoneCommand, commander.Zone)
	assert.Len(t, alice.Zones.Library, 99)
	for _, id := range alice.Zones.Library {
		assert.NotEqual(t, "2xm-190", next.Cards[id].DefinitionID)
		assert.False(t, next.Cards[id].IsFaceUp)
	}
	assert.Equal(t, "Atraxa, Praetors' Voice", alice.Deck.Commander)
}

func TestImportAtraxaThenDrawSeven(t *testing.T) {
	e := newEngine(t)
	s, err := e.AddPlayer(game.NewState("table-1"), "alice", "Alice")
	require.NoError(t, err)
	s, err = e.ImportTemplate(s, "alice", atraxaDeck(t))
	require.NoError(t, err)

	s, err = e.Draw(s, "alice", 7)
	require.NoError(t, err)

	alice := s.Player("alice")
	assert.Len(t, alice.Zones.Library, 92)
	assert.Len(t, alice.Zones.Hand, 7)
	assert.Len(t, alice.Zones.Command, 1)
	assert.True(t, s.Cards[alice.Zones.Command[0]].IsFaceUp)
	assert.Len(t, s.Cards, 100)
	require.NoError(t, s.Validate())
}

func TestImportDeckErrors(t *testing.T) {
	e := newEngine(t)
	s, err := e.AddPlayer(game.NewState("table-1"), "alice", "Alice")
	require.NoError(t, err)
	defs := cards.BuiltinDefinitions()

	cases := []struct {
		name string
		text string
	}{
		{"empty", "   \n"},
		{"bad quantity", "0 Forest"},
		{"two commanders", "1 Sol Ring *CMDR*\n1 Atraxa, Praetors' Voice *CMDR*"},
		{"nothing resolves", "4 Black Lotus"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := e.ImportDeck(s, "alice", game.DeckImport{DeckList: tc.text, Definitions: defs})
			require.ErrorIs(t, err, game.ErrInvalidDeck)
			assert.Same(t, s, next)
		})
	}

	_, err = e.ImportDeck(s, "nobody", game.DeckImport{DeckList: "1 Forest", Definitions: defs})
	assert.ErrorIs(t, err, game.ErrRejected)
}

func TestImportSkipsUnresolvedAndMatchesFrontFace(t *testing.T) {
	e := newEngine(t)
	s, err := e.AddPlayer(game.NewState("table-1"), "alice", "Alice")
	require.NoError(t, err)

	next, err := e.ImportDeck(s, "alice", game.DeckImport{
		DeckList:    "2 delver of secrets\n3 Black Lotus\n1 FOREST",
		Definitions: cards.BuiltinDefinitions(),
	})
	require.NoError(t, err)

	lib := next.Player("alice").Zones.Library
	require.Len(t, lib, 3)
	defs := make(map[string]int)
	for _, id := range lib {
		defs[next.Cards[id].DefinitionID]++
	}
	assert.Equal(t, map[string]int{"mid-47": 2, "unf-239": 1}, defs)
	assert.Equal(t, "Imported deck", next.Player("alice").Deck.Name)
}
