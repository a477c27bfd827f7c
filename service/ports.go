package service

import (
	"context"

	"github.com/google/uuid"

	"bazaar/domain/market"
)

// Collaborator contracts, declared on the consumer side. The engine owns
// none of these: storage, catalog and delivery are injected.

// ListingStore is the durable table of active buy/sell intents plus the
// match-record archive.
type ListingStore interface {
	// PutIntent inserts or replaces the intent for (owner, item, side).
	PutIntent(ctx context.Context, in market.Intent) error
	// DeleteIntent removes one listing; market.ErrIntentNotFound if absent.
	DeleteIntent(ctx context.Context, owner market.UserID, item market.ItemID, side market.Side) error
	// QueryOpposite returns the intents on the side opposite to side for
	// item, ascending by price, excluding any owned by exclude.
	QueryOpposite(ctx context.Context, item market.ItemID, side market.Side, exclude market.UserID) ([]market.Intent, error)
	// UserIntents lists all active listings owned by owner.
	UserIntents(ctx context.Context, owner market.UserID) ([]market.Intent, error)
	// PersistMatch durably records a completed negotiation.
	PersistMatch(ctx context.Context, rec market.MatchRecord) error
}

// Catalog resolves item names to identifiers. Lookups are O(1).
type Catalog interface {
	Resolve(name string) (market.ItemID, error)
	Exists(id market.ItemID) bool
	Name(id market.ItemID) (string, bool)
}

type EventKind string

const (
	EventSessionCreated EventKind = "session_created"
	EventConfirmed      EventKind = "participant_confirmed"
	EventPriceProposed  EventKind = "price_proposed"
	EventCompleted      EventKind = "session_completed"
	EventCancelled      EventKind = "session_cancelled"
	EventExpired        EventKind = "session_expired"
)

// NotificationSink delivers session-state changes to the participants.
// Best effort: a delivery failure never rolls back a transition.
type NotificationSink interface {
	EmitSessionEvent(ctx context.Context, sessionID uuid.UUID, kind EventKind, payload any) error
}

// Outbox stages completed matches for at-least-once publication by the
// broadcaster job, independently of the in-band notification sink.
type Outbox interface {
	Stage(ctx context.Context, rec market.MatchRecord) error
}
