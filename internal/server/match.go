package server

import (
	"context"

	"github.com/QuinnsCode/qbear3-sub004/internal/matchmaking"
	"github.com/QuinnsCode/qbear3-sub004/internal/session"
)

// MatchCreator seeds matchmaking pairs into new sessions.
type MatchCreator struct {
	sessions *session.Manager
}

// NewMatchCreator returns a matchmaking.SessionCreator and
// matchmaking.DeckChecker backed by sessions.
func NewMatchCreator(sessions *session.Manager) *MatchCreator {
	return &MatchCreator{sessions: sessions}
}

// CreateMatch implements matchmaking.SessionCreator.
func (m *MatchCreator) CreateMatch(ctx context.Context, matchID string, players []matchmaking.Entry) error {
	seats := make([]session.Seat, 0, len(players))
	for _, p := range players {
		seats = append(seats, session.Seat{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			DeckID:   p.DeckID,
		})
	}
	return m.sessions.CreateMatch(ctx, matchID, seats)
}

// CheckDeck implements matchmaking.DeckChecker.
func (m *MatchCreator) CheckDeck(ctx context.Context, deckID string) error {
	return m.sessions.CheckDeck(ctx, deckID)
}
