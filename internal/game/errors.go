package game

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRejected marks an action that was refused without changing state.
	ErrRejected = errors.New("action rejected")
	// ErrInvalidDeck marks a deck list that could not be imported.
	ErrInvalidDeck = errors.New("invalid deck list")
	// ErrUnknownAction marks an action type the engine does not handle.
	ErrUnknownAction = errors.New("unknown action type")
)

// RejectedError describes why an operation was refused.
type RejectedError struct {
	Op     string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Reason)
}

// Unwrap lets errors.Is match ErrRejected.
func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// DeckError carries every problem found while parsing a deck list.
type DeckError struct {
	Problems []string
}

func (e *DeckError) Error() string {
	return fmt.Sprintf("invalid deck list: %s", strings.Join(e.Problems, "; "))
}

// Unwrap lets errors.Is match ErrInvalidDeck.
func (e *DeckError) Unwrap() error {
	return ErrInvalidDeck
}
