package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bazaar/domain/market"
)

/*
Engine is the ONLY write entry point into the marketplace core.

All coordination between:
- domain (market)
- collaborators (listing store, catalog, notification sink, outbox)
- the session registry
happens here.
*/
type Engine struct {
	store   ListingStore
	catalog Catalog
	sink    NotificationSink
	outbox  Outbox
	reg     *Registry
	log     *zap.Logger

	sessionTTL      time.Duration
	persistAttempts int

	now   func() time.Time
	sleep func(time.Duration)
}

// Option tweaks engine policy; defaults suit production.
type Option func(*Engine)

// WithSessionTTL sets how long a negotiation may stay open before the
// sweep force-cancels it.
func WithSessionTTL(d time.Duration) Option {
	return func(e *Engine) { e.sessionTTL = d }
}

// WithPersistAttempts sets the retry budget for the match-record write.
func WithPersistAttempts(n int) Option {
	return func(e *Engine) { e.persistAttempts = n }
}

func withClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// NewEngine wires all dependencies. No globals. The outbox may be nil when
// at-least-once match publication is not wanted.
func NewEngine(store ListingStore, catalog Catalog, sink NotificationSink, outbox Outbox, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		catalog:         catalog,
		sink:            sink,
		outbox:          outbox,
		reg:             NewRegistry(),
		log:             log,
		sessionTTL:      time.Hour,
		persistAttempts: 5,
		now:             time.Now,
		sleep:           time.Sleep,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Registry exposes the live-session registry, read-only use only.
func (e *Engine) Registry() *Registry {
	return e.reg
}

//
// ──────────────────────────────────────────────────────────
// Intents
// ──────────────────────────────────────────────────────────
//

// OnNewIntent records a buy/sell listing and opens one negotiation session
// per price-compatible counterparty, in ascending price order. The returned
// ids preserve that order. A pairing that already has an open session is
// skipped, not an error: the existing negotiation stands.
func (e *Engine) OnNewIntent(ctx context.Context, owner market.UserID, itemID market.ItemID, side market.Side, price decimal.Decimal) ([]uuid.UUID, error) {
	if owner == "" {
		return nil, &market.ValidationError{Field: "owner", Reason: "empty"}
	}
	if err := market.ValidatePrice(price); err != nil {
		return nil, err
	}
	if !e.catalog.Exists(itemID) {
		return nil, market.ErrItemNotFound
	}

	in := market.Intent{
		Owner:     owner,
		ItemID:    itemID,
		Side:      side,
		Price:     price,
		CreatedAt: e.now(),
	}
	if err := e.store.PutIntent(ctx, in); err != nil {
		return nil, fmt.Errorf("store intent: %w", err)
	}

	opposite, err := e.store.QueryOpposite(ctx, itemID, side, owner)
	if err != nil {
		return nil, fmt.Errorf("query opposite intents: %w", err)
	}

	var created []uuid.UUID
	for _, cand := range market.MatchCandidates(in, opposite) {
		buyer, seller := owner, cand.Counterparty
		buyerPrice, sellerPrice := price, cand.Price
		if side == market.Sell {
			buyer, seller = cand.Counterparty, owner
			buyerPrice, sellerPrice = cand.Price, price
		}

		sess, err := e.reg.Create(buyer, seller, itemID, buyerPrice, sellerPrice, e.now())
		if errors.Is(err, market.ErrDuplicateSession) {
			e.log.Debug("pairing already negotiating",
				zap.String("buyer", string(buyer)),
				zap.String("seller", string(seller)),
				zap.Uint64("item", uint64(itemID)))
			continue
		}
		if err != nil {
			e.log.Warn("session not created", zap.Error(err))
			continue
		}

		created = append(created, sess.ID)
		e.emit(ctx, sess.ID, EventSessionCreated, map[string]any{
			"buyer":        buyer,
			"seller":       seller,
			"item_id":      itemID,
			"buyer_price":  buyerPrice,
			"seller_price": sellerPrice,
		})
	}

	e.log.Info("intent listed",
		zap.String("owner", string(owner)),
		zap.Uint64("item", uint64(itemID)),
		zap.Stringer("side", side),
		zap.String("price", price.StringFixed(2)),
		zap.Int("sessions", len(created)))
	return created, nil
}

// WithdrawIntent removes one of owner's listings.
func (e *Engine) WithdrawIntent(ctx context.Context, owner market.UserID, itemID market.ItemID, side market.Side) error {
	return e.store.DeleteIntent(ctx, owner, itemID, side)
}

// UserIntents lists owner's active listings.
func (e *Engine) UserIntents(ctx context.Context, owner market.UserID) ([]market.Intent, error) {
	return e.store.UserIntents(ctx, owner)
}

// PriceStats summarizes the opposite side of the book for an item.
type PriceStats struct {
	Count int
	Min   decimal.Decimal
	Max   decimal.Decimal
	Avg   decimal.Decimal
}

// PriceSuggestions reports count/min/max/avg over the listings a new intent
// on side would be matched against. A zero Count means no listings exist;
// that is not an error.
func (e *Engine) PriceSuggestions(ctx context.Context, itemID market.ItemID, side market.Side) (PriceStats, error) {
	if !e.catalog.Exists(itemID) {
		return PriceStats{}, market.ErrItemNotFound
	}
	opposite, err := e.store.QueryOpposite(ctx, itemID, side, "")
	if err != nil {
		return PriceStats{}, fmt.Errorf("query opposite intents: %w", err)
	}
	if len(opposite) == 0 {
		return PriceStats{}, nil
	}

	stats := PriceStats{Count: len(opposite), Min: opposite[0].Price, Max: opposite[0].Price}
	sum := decimal.Zero
	for _, in := range opposite {
		stats.Min = decimal.Min(stats.Min, in.Price)
		stats.Max = decimal.Max(stats.Max, in.Price)
		sum = sum.Add(in.Price)
	}
	stats.Avg = sum.Div(decimal.NewFromInt(int64(stats.Count))).Round(2)
	return stats, nil
}

//
// ──────────────────────────────────────────────────────────
// Session actions
// ──────────────────────────────────────────────────────────
//

// Confirm records actor's agreement to the price on the table. When the
// counterparty has already confirmed the session completes and the match is
// persisted. The in-memory completion is decided first; if the durable
// write still fails after retries the error is surfaced but the session
// stays completed, so the negotiation can never be re-run.
func (e *Engine) Confirm(ctx context.Context, id uuid.UUID, actor market.UserID) (market.Status, error) {
	snap, err := e.reg.Dispatch(id, func(s *market.Session) error {
		return s.Confirm(actor)
	})
	if err != nil {
		return snap.Status, err
	}

	if snap.Status != market.Completed {
		e.emit(ctx, id, EventConfirmed, map[string]any{
			"actor":    actor,
			"proposed": snap.Proposed,
		})
		return snap.Status, nil
	}

	if err := e.finishMatch(ctx, snap); err != nil {
		return snap.Status, err
	}
	return snap.Status, nil
}

// ProposePrice counter-offers a new price, clearing both confirmations.
func (e *Engine) ProposePrice(ctx context.Context, id uuid.UUID, actor market.UserID, price decimal.Decimal) (market.Status, error) {
	snap, err := e.reg.Dispatch(id, func(s *market.Session) error {
		return s.Propose(actor, price)
	})
	if err != nil {
		return snap.Status, err
	}
	e.emit(ctx, id, EventPriceProposed, map[string]any{
		"actor":    actor,
		"proposed": price,
	})
	return snap.Status, nil
}

// Cancel ends the negotiation at actor's request. No match record is
// written.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID, actor market.UserID) (market.Status, error) {
	snap, err := e.reg.Dispatch(id, func(s *market.Session) error {
		return s.Cancel(actor)
	})
	if err != nil {
		return snap.Status, err
	}
	e.emit(ctx, id, EventCancelled, map[string]any{"actor": actor})
	return snap.Status, nil
}

// SweepExpired force-cancels sessions that have been open longer than the
// session TTL. Intended to be called periodically by a background job.
func (e *Engine) SweepExpired(ctx context.Context) int {
	expired := e.reg.Sweep(e.now(), e.sessionTTL)
	for _, snap := range expired {
		e.emit(ctx, snap.ID, EventExpired, map[string]any{
			"buyer":  snap.Buyer,
			"seller": snap.Seller,
		})
	}
	if len(expired) > 0 {
		e.log.Info("expired stale sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

//
// ──────────────────────────────────────────────────────────
// Completion
// ──────────────────────────────────────────────────────────
//

// finishMatch runs the post-completion side effects: durable match record
// (with retries), listing consumption, outbox staging, notification.
func (e *Engine) finishMatch(ctx context.Context, snap market.Session) error {
	rec := market.MatchRecord{
		ID:          uuid.New(),
		Buyer:       snap.Buyer,
		Seller:      snap.Seller,
		ItemID:      snap.ItemID,
		BuyerPrice:  snap.BuyerPrice,
		SellerPrice: snap.SellerPrice,
		FinalPrice:  snap.Proposed,
		SessionID:   snap.ID,
		CreatedAt:   e.now(),
	}

	if err := e.persistWithRetry(ctx, rec); err != nil {
		e.log.Error("match record lost after retries",
			zap.String("session", snap.ID.String()),
			zap.Error(err))
		return fmt.Errorf("persist match: %w", err)
	}

	// Completed matches consume both listings. Best effort: a missing
	// listing just means it was withdrawn mid-negotiation.
	for _, d := range []struct {
		owner market.UserID
		side  market.Side
	}{
		{snap.Buyer, market.Buy},
		{snap.Seller, market.Sell},
	} {
		if err := e.store.DeleteIntent(ctx, d.owner, snap.ItemID, d.side); err != nil && !errors.Is(err, market.ErrIntentNotFound) {
			e.log.Warn("listing not consumed",
				zap.String("owner", string(d.owner)),
				zap.Error(err))
		}
	}

	if e.outbox != nil {
		if err := e.outbox.Stage(ctx, rec); err != nil {
			e.log.Warn("match not staged for broadcast", zap.Error(err))
		}
	}

	e.emit(ctx, snap.ID, EventCompleted, map[string]any{
		"buyer":       snap.Buyer,
		"seller":      snap.Seller,
		"item_id":     snap.ItemID,
		"final_price": snap.Proposed,
		"match_id":    rec.ID,
	})

	e.log.Info("negotiation completed",
		zap.String("session", snap.ID.String()),
		zap.String("final_price", snap.Proposed.StringFixed(2)))
	return nil
}

// persistWithRetry is the one retry-worthy path in the engine: the session
// is already completed, so the write must eventually land or be reported as
// fatal. Everything else fails fast.
func (e *Engine) persistWithRetry(ctx context.Context, rec market.MatchRecord) error {
	var err error
	for attempt := 0; attempt < e.persistAttempts; attempt++ {
		if err = e.store.PersistMatch(ctx, rec); err == nil {
			return nil
		}
		e.log.Warn("match persist failed, backing off",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if attempt < e.persistAttempts-1 {
			e.sleep(backoffDelay(attempt))
		}
	}
	return err
}

// emit delivers a session event. Fire and forget: a sink failure is logged,
// never propagated into the state machine.
func (e *Engine) emit(ctx context.Context, id uuid.UUID, kind EventKind, payload any) {
	if err := e.sink.EmitSessionEvent(ctx, id, kind, payload); err != nil {
		e.log.Warn("event not delivered",
			zap.String("session", id.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
