package game_test

import (
	"encoding/json"
	"testing"

	"github.com/QuinnsCode/qbear3-sub004/internal/cards"
	"github.com/QuinnsCode/qbear3-sub004/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func action(t *testing.T, typ game.ActionType, playerID string, data any) game.Action {
	t.Helper()
	a := game.Action{Type: typ, PlayerID: playerID}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		a.Data = raw
	}
	return a
}

func TestApplyDispatch(t *testing.T) {
	e := newEngine(t)
	s := game.NewState("table-1")

	s, err := e.Apply(s, action(t, game.ActionJoinGame, "alice", game.JoinGame{Name: "Alice"}))
	require.NoError(t, err)
	require.NotNil(t, s.Player("alice"))

	s, err = e.Apply(s, action(t, game.ActionImportDeck, "alice", map[string]any{
		"deckList": "8 Forest",
		"cardData": cards.BuiltinDefinitions(),
	}))
	require.NoError(t, err)
	assert.Len(t, s.Player("alice").Zones.Library, 8)

	s, err = e.Apply(s, action(t, game.ActionDrawCards, "alice", nil))
	require.NoError(t, err)
	assert.Len(t, s.Player("alice").Zones.Hand, 1, "missing count draws one")

	s, err = e.Apply(s, action(t, game.ActionDrawCards, "alice", game.CountData{Count: 2}))
	require.NoError(t, err)
	assert.Len(t, s.Player("alice").Zones.Hand, 3)

	handCard := s.Player("alice").Zones.Hand[0]
	s, err = e.Apply(s, action(t, game.ActionMoveCard, "alice", map[string]any{
		"cardId":   handCard,
		"fromZone": "hand",
		"toZone":   "battlefield",
		"position": map[string]float64{"x": 5, "y": 6},
	}))
	require.NoError(t, err)
	assert.Equal(t, &game.Position{X: 5, Y: 6}, s.Cards[handCard].Position)

	s, err = e.Apply(s, action(t, game.ActionTapCard, "alice", game.CardRef{CardID: handCard}))
	require.NoError(t, err)
	assert.True(t, s.Cards[handCard].IsTapped)

	s, err = e.Apply(s, action(t, game.ActionUntapAll, "alice", nil))
	require.NoError(t, err)
	assert.False(t, s.Cards[handCard].IsTapped)

	s, err = e.Apply(s, action(t, game.ActionFlipCard, "alice", game.CardRef{CardID: handCard}))
	require.NoError(t, err)
	assert.False(t, s.Cards[handCard].IsFaceUp)

	s, err = e.Apply(s, action(t, game.ActionShuffleLibrary, "alice", nil))
	require.NoError(t, err)

	s, err = e.Apply(s, action(t, game.ActionMill, "alice", game.CountData{Count: 2}))
	require.NoError(t, err)
	assert.Len(t, s.Player("alice").Zones.Graveyard, 2)
	require.NoError(t, s.Validate())
}

func TestApplyErrors(t *testing.T) {
	e := newEngine(t)
	s := seeded(t, e, "3 Forest")

	next, err := e.Apply(s, game.Action{Type: "summon_dragon", PlayerID: "alice"})
	assert.ErrorIs(t, err, game.ErrUnknownAction)
	assert.Same(t, s, next)

	next, err = e.Apply(s, game.Action{Type: game.ActionDrawCards, PlayerID: "alice", Data: json.RawMessage(`{"count":"many"}`)})
	assert.ErrorIs(t, err, game.ErrInvalidPayload)
	assert.Same(t, s, next)

	next, err = e.Apply(s, game.Action{Type: game.ActionImportSandboxDeck, PlayerID: "alice"})
	assert.ErrorIs(t, err, game.ErrUnknownAction)
	assert.Same(t, s, next)
}
