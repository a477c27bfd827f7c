package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status int

const (
	Open Status = iota
	Completed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Session is the negotiation state machine for one matched pair. It is a
// pure value: callers (the registry) are responsible for serializing access.
//
// Proposed stays zero until the first confirmation or counter-proposal sets
// it; every valid proposal is positive, so zero means unset.
type Session struct {
	ID          uuid.UUID
	Buyer       UserID
	Seller      UserID
	ItemID      ItemID
	BuyerPrice  decimal.Decimal
	SellerPrice decimal.Decimal

	Proposed        decimal.Decimal
	BuyerConfirmed  bool
	SellerConfirmed bool
	Status          Status
	CreatedAt       time.Time
}

// NewSession opens a negotiation between a distinct buyer and seller.
func NewSession(id uuid.UUID, buyer, seller UserID, item ItemID, buyerPrice, sellerPrice decimal.Decimal, now time.Time) (*Session, error) {
	if buyer == seller {
		return nil, &ValidationError{Field: "participants", Reason: "buyer and seller must be distinct"}
	}
	return &Session{
		ID:          id,
		Buyer:       buyer,
		Seller:      seller,
		ItemID:      item,
		BuyerPrice:  buyerPrice,
		SellerPrice: sellerPrice,
		Status:      Open,
		CreatedAt:   now,
	}, nil
}

func (s *Session) participant(u UserID) bool {
	return u == s.Buyer || u == s.Seller
}

// guard applies the checks common to every transition, before any field is
// touched: the actor must be a participant and the session must be open.
func (s *Session) guard(actor UserID) error {
	if !s.participant(actor) {
		return ErrNotParticipant
	}
	if s.Status != Open {
		return &StateError{Status: s.Status}
	}
	return nil
}

// Confirm records actor's agreement to the proposed price. The first
// confirmation with no price on the table defaults it to the lower of the
// two initial prices. Confirming twice is a no-op. When both parties have
// confirmed the session completes.
func (s *Session) Confirm(actor UserID) error {
	if err := s.guard(actor); err != nil {
		return err
	}
	if s.Proposed.IsZero() {
		s.Proposed = decimal.Min(s.BuyerPrice, s.SellerPrice)
	}
	if actor == s.Buyer {
		s.BuyerConfirmed = true
	} else {
		s.SellerConfirmed = true
	}
	if s.BuyerConfirmed && s.SellerConfirmed {
		s.Status = Completed
	}
	return nil
}

// Propose puts a new price on the table and clears both confirmations: a
// price change invalidates any consent given to the old price.
func (s *Session) Propose(actor UserID, price decimal.Decimal) error {
	if err := s.guard(actor); err != nil {
		return err
	}
	if err := ValidatePrice(price); err != nil {
		return err
	}
	s.Proposed = price
	s.BuyerConfirmed = false
	s.SellerConfirmed = false
	return nil
}

// Cancel ends the negotiation at either party's request.
func (s *Session) Cancel(actor UserID) error {
	if err := s.guard(actor); err != nil {
		return err
	}
	s.Status = Cancelled
	return nil
}

// Expire is the engine-initiated cancellation used by the timeout sweep.
// Observable effect is identical to Cancel.
func (s *Session) Expire() {
	if s.Status == Open {
		s.Status = Cancelled
	}
}
