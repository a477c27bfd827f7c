package market

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserID is an opaque participant identity. The engine never interprets it.
type UserID string

// ItemID identifies a catalogued item.
type ItemID uint64

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide maps the wire spelling of a side to its enum value.
func ParseSide(v string) (Side, error) {
	switch v {
	case "buy", "buying":
		return Buy, nil
	case "sell", "selling":
		return Sell, nil
	default:
		return 0, &ValidationError{Field: "side", Reason: fmt.Sprintf("must be buy or sell, got %q", v)}
	}
}

// Intent is a declared wish to buy or sell one item at a target price.
// At most one intent exists per (owner, item, side).
type Intent struct {
	Owner     UserID
	ItemID    ItemID
	Side      Side
	Price     decimal.Decimal
	CreatedAt time.Time
}

// CandidateMatch is a price-compatible counterparty found for a new intent.
// Ephemeral: produced by the matcher, never persisted.
type CandidateMatch struct {
	Counterparty UserID
	Price        decimal.Decimal
}

// MatchRecord is the immutable durable trace of a completed negotiation.
type MatchRecord struct {
	ID          uuid.UUID       `json:"id"`
	Buyer       UserID          `json:"buyer"`
	Seller      UserID          `json:"seller"`
	ItemID      ItemID          `json:"item_id"`
	BuyerPrice  decimal.Decimal `json:"buyer_price"`
	SellerPrice decimal.Decimal `json:"seller_price"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	SessionID   uuid.UUID       `json:"session_id"`
	CreatedAt   time.Time       `json:"created_at"`
}
