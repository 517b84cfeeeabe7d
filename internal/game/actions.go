package game

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload marks an action whose data could not be decoded.
var ErrInvalidPayload = errors.New("invalid action payload")

// JoinGame is the payload of a join_game action.
type JoinGame struct {
	Name string `json:"name"`
}

// CountData is the payload of draw_cards and mill. A zero count means one.
type CountData struct {
	Count int `json:"count"`
}

// CardRef is the payload of tap_card and flip_card.
type CardRef struct {
	CardID string `json:"cardId"`
}

// ImportSandboxDeck is the payload of import_sandbox_deck.
type ImportSandboxDeck struct {
	TemplateIndex int `json:"templateIndex"`
}

// Apply dispatches a logged action to the matching engine operation.
// import_sandbox_deck needs template resolution and is handled by the caller
// through ImportTemplate.
func (e *Engine) Apply(s *State, a Action) (*State, error) {
	switch a.Type {
	case ActionJoinGame:
		data, err := DecodeData[JoinGame](a)
		if err != nil {
			return s, err
		}
		return e.AddPlayer(s, a.PlayerID, data.Name)

	case ActionMoveCard:
		data, err := DecodeData[MoveCard](a)
		if err != nil {
			return s, err
		}
		return e.Move(s, a.PlayerID, data)

	case ActionDrawCards:
		data, err := DecodeData[CountData](a)
		if err != nil {
			return s, err
		}
		return e.Draw(s, a.PlayerID, defaultCount(data.Count))

	case ActionShuffleLibrary:
		return e.Shuffle(s, a.PlayerID)

	case ActionMill:
		data, err := DecodeData[CountData](a)
		if err != nil {
			return s, err
		}
		return e.Mill(s, a.PlayerID, defaultCount(data.Count))

	case ActionImportDeck:
		data, err := DecodeData[DeckImport](a)
		if err != nil {
			return s, err
		}
		return e.ImportDeck(s, a.PlayerID, data)

	case ActionTapCard:
		data, err := DecodeData[CardRef](a)
		if err != nil {
			return s, err
		}
		return e.Tap(s, a.PlayerID, data.CardID)

	case ActionFlipCard:
		data, err := DecodeData[CardRef](a)
		if err != nil {
			return s, err
		}
		return e.Flip(s, a.PlayerID, data.CardID)

	case ActionUntapAll:
		return e.UntapAll(s, a.PlayerID)
	}

	return s, fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
}

// DecodeData unmarshals an action payload. An empty payload yields the zero
// value.
func DecodeData[T any](a Action) (T, error) {
	var data T
	if len(a.Data) == 0 || string(a.Data) == "null" {
		return data, nil
	}
	if err := json.Unmarshal(a.Data, &data); err != nil {
		return data, fmt.Errorf("%w for %s: %v", ErrInvalidPayload, a.Type, err)
	}
	return data, nil
}

func defaultCount(n int) int {
	if n == 0 {
		return 1
	}
	return n
}
