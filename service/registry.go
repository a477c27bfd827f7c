package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bazaar/domain/market"
)

// tripleKey identifies an unordered (participant, participant, item)
// pairing. Participants are stored in lexical order so that the key is the
// same whichever side created the session.
type tripleKey struct {
	a, b market.UserID
	item market.ItemID
}

func newTripleKey(x, y market.UserID, item market.ItemID) tripleKey {
	if y < x {
		x, y = y, x
	}
	return tripleKey{a: x, b: y, item: item}
}

// entry wraps a live session with its serialization lock. retired flips
// once, under mu, when the session reaches a terminal state; a dispatcher
// that raced the retirement sees it and reports the session gone.
type entry struct {
	mu      sync.Mutex
	sess    *market.Session
	retired bool
}

// Registry is the single authority for session creation and retirement. It
// owns the only shared mutable structure in the engine: the live-session
// map. Operations on different sessions proceed in parallel; operations on
// one session are serialized by its entry lock.
type Registry struct {
	mu       sync.Mutex
	live     map[uuid.UUID]*entry
	byTriple map[tripleKey]uuid.UUID
}

func NewRegistry() *Registry {
	return &Registry{
		live:     make(map[uuid.UUID]*entry),
		byTriple: make(map[tripleKey]uuid.UUID),
	}
}

// Create opens a session for a matched pair. At most one open session may
// exist per unordered (buyer, seller, item) triple; a second attempt while
// the first is live fails with market.ErrDuplicateSession.
func (r *Registry) Create(buyer, seller market.UserID, item market.ItemID, buyerPrice, sellerPrice decimal.Decimal, now time.Time) (market.Session, error) {
	sess, err := market.NewSession(uuid.New(), buyer, seller, item, buyerPrice, sellerPrice, now)
	if err != nil {
		return market.Session{}, err
	}

	key := newTripleKey(buyer, seller, item)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTriple[key]; exists {
		return market.Session{}, market.ErrDuplicateSession
	}
	r.live[sess.ID] = &entry{sess: sess}
	r.byTriple[key] = sess.ID
	return *sess, nil
}

// Dispatch applies one transition to the addressed session under its lock
// and retires the session from the live map if the transition made it
// terminal. Retirement happens before the lock is released, so two
// confirmations can never both be observed as "flags set, still open". The
// returned snapshot is the post-transition state.
func (r *Registry) Dispatch(id uuid.UUID, apply func(*market.Session) error) (market.Session, error) {
	r.mu.Lock()
	e, ok := r.live[id]
	r.mu.Unlock()
	if !ok {
		return market.Session{}, market.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retired {
		return market.Session{}, market.ErrSessionNotFound
	}
	if err := apply(e.sess); err != nil {
		return *e.sess, err
	}
	if e.sess.Status != market.Open {
		r.retire(e)
	}
	return *e.sess, nil
}

// retire is called with e.mu held.
func (r *Registry) retire(e *entry) {
	e.retired = true
	r.mu.Lock()
	delete(r.live, e.sess.ID)
	delete(r.byTriple, newTripleKey(e.sess.Buyer, e.sess.Seller, e.sess.ItemID))
	r.mu.Unlock()
}

// Sweep force-cancels every open session created before the cutoff and
// returns their final snapshots. Abandoned negotiations would otherwise
// accumulate in the live map forever.
func (r *Registry) Sweep(now time.Time, maxAge time.Duration) []market.Session {
	cutoff := now.Add(-maxAge)

	r.mu.Lock()
	stale := make([]*entry, 0)
	for _, e := range r.live {
		if e.sess.CreatedAt.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	r.mu.Unlock()

	var expired []market.Session
	for _, e := range stale {
		e.mu.Lock()
		if !e.retired && e.sess.Status == market.Open {
			e.sess.Expire()
			r.retire(e)
			expired = append(expired, *e.sess)
		}
		e.mu.Unlock()
	}
	return expired
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
