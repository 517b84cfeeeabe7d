package cards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/QuinnsCode/qbear3-sub004/internal/repository"
)

// ErrDeckNotFound is returned when a stored deck does not exist.
var ErrDeckNotFound = errors.New("deck not found")

// StoredDeck is a deck list exported from the deck builder.
type StoredDeck struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId,omitempty"`
	Name       string    `json:"name"`
	Text       string    `json:"text"`
	ExportedAt time.Time `json:"exportedAt"`
}

// DeckStore persists exported deck lists and resolves them into
// definitions for session seeding.
type DeckStore struct {
	store   repository.Store
	catalog Catalog
}

// NewDeckStore creates a deck store.
func NewDeckStore(store repository.Store, catalog Catalog) *DeckStore {
	return &DeckStore{store: store, catalog: catalog}
}

// Put validates and stores deck.
func (d *DeckStore) Put(ctx context.Context, deck StoredDeck) error {
	if strings.TrimSpace(deck.ID) == "" {
		return fmt.Errorf("deck id is required")
	}
	if strings.TrimSpace(deck.Text) == "" {
		return fmt.Errorf("deck text is required")
	}
	if deck.ExportedAt.IsZero() {
		deck.ExportedAt = time.Now().UTC()
	}

	data, err := json.Marshal(deck)
	if err != nil {
		return fmt.Errorf("failed to marshal deck: %w", err)
	}
	if err := d.store.Put(ctx, repository.DeckKey(deck.ID), data); err != nil {
		return fmt.Errorf("failed to store deck: %w", err)
	}
	return nil
}

// Get loads a stored deck.
func (d *DeckStore) Get(ctx context.Context, deckID string) (StoredDeck, error) {
	data, err := d.store.Get(ctx, repository.DeckKey(deckID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return StoredDeck{}, fmt.Errorf("%w: %s", ErrDeckNotFound, deckID)
		}
		return StoredDeck{}, fmt.Errorf("failed to load deck: %w", err)
	}

	var deck StoredDeck
	if err := json.Unmarshal(data, &deck); err != nil {
		return StoredDeck{}, fmt.Errorf("failed to decode deck: %w", err)
	}
	return deck, nil
}

// Resolve loads a stored deck and the definitions it references.
func (d *DeckStore) Resolve(ctx context.Context, deckID string) (ResolvedDeck, error) {
	deck, err := d.Get(ctx, deckID)
	if err != nil {
		return ResolvedDeck{}, err
	}

	defs, err := LookupDeck(ctx, d.catalog, deck.Text)
	if err != nil {
		return ResolvedDeck{}, fmt.Errorf("failed to resolve deck %s: %w", deckID, err)
	}

	return ResolvedDeck{
		Name:        deck.Name,
		Text:        deck.Text,
		Definitions: defs,
	}, nil
}
