package market

import (
	"errors"
	"fmt"
)

var (
	// ErrNotParticipant rejects actions from anyone who is not the buyer
	// or seller of the addressed session.
	ErrNotParticipant = errors.New("actor is not a participant in this session")

	ErrSessionNotFound = errors.New("session not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrIntentNotFound  = errors.New("no such listing")

	// ErrDuplicateSession rejects a second open session for the same
	// (buyer, seller, item) pairing.
	ErrDuplicateSession = errors.New("an open session already exists for this pairing")
)

// ValidationError reports rejected input. Checked before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateError rejects an action on a terminal session. Status tells the
// caller whether the session already completed or was cancelled.
type StateError struct {
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session already %s", e.Status)
}
