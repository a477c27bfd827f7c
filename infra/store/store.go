// Package store is the pebble-backed listing store: the durable table of
// active buy/sell intents plus the match-record archive.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	"bazaar/domain/market"
)

// Key layout:
//
//	intent/<item:8BE><side:1><cents:8BE>/<owner>  -> intent JSON
//	owner/<owner>\x00<item:8BE><side:1>           -> primary intent key
//	match/<uuid:16>                               -> match record JSON
//
// The price is embedded in the primary key as big-endian cents, so a prefix
// scan over (item, side) yields intents in ascending price order, which is
// the ordering contract the matcher depends on.
type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open listing store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type intentRow struct {
	Owner     market.UserID   `json:"owner"`
	ItemID    market.ItemID   `json:"item_id"`
	Side      market.Side     `json:"side"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// PutIntent inserts or replaces the listing for (owner, item, side). A
// replaced listing's old price key is removed in the same batch, so the
// uniqueness invariant holds across the supersede.
func (s *Store) PutIntent(_ context.Context, in market.Intent) error {
	idx := ownerKey(in.Owner, in.ItemID, in.Side)

	b := s.db.NewBatch()
	defer b.Close()

	if old, closer, err := s.db.Get(idx); err == nil {
		prev := append([]byte(nil), old...)
		_ = closer.Close()
		if err := b.Delete(prev, nil); err != nil {
			return err
		}
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("lookup existing listing: %w", err)
	}

	val, err := json.Marshal(intentRow{
		Owner:     in.Owner,
		ItemID:    in.ItemID,
		Side:      in.Side,
		Price:     in.Price,
		CreatedAt: in.CreatedAt,
	})
	if err != nil {
		return err
	}

	pk := intentKey(in.ItemID, in.Side, in.Price, in.Owner)
	if err := b.Set(pk, val, nil); err != nil {
		return err
	}
	if err := b.Set(idx, pk, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// DeleteIntent removes one listing and its index entry.
func (s *Store) DeleteIntent(_ context.Context, owner market.UserID, item market.ItemID, side market.Side) error {
	idx := ownerKey(owner, item, side)

	pk, closer, err := s.db.Get(idx)
	if errors.Is(err, pebble.ErrNotFound) {
		return market.ErrIntentNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup listing: %w", err)
	}
	primary := append([]byte(nil), pk...)
	_ = closer.Close()

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(primary, nil); err != nil {
		return err
	}
	if err := b.Delete(idx, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// QueryOpposite returns the intents opposing side for item, ascending by
// price, excluding any owned by exclude.
func (s *Store) QueryOpposite(_ context.Context, item market.ItemID, side market.Side, exclude market.UserID) ([]market.Intent, error) {
	lower := intentPrefix(item, side.Opposite())
	upper := prefixUpperBound(lower)

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []market.Intent
	for iter.First(); iter.Valid(); iter.Next() {
		var row intentRow
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return nil, fmt.Errorf("decode listing %q: %w", iter.Key(), err)
		}
		if exclude != "" && row.Owner == exclude {
			continue
		}
		out = append(out, market.Intent(row))
	}
	return out, iter.Error()
}

// UserIntents lists all active listings owned by owner.
func (s *Store) UserIntents(_ context.Context, owner market.UserID) ([]market.Intent, error) {
	lower := ownerPrefix(owner)
	upper := prefixUpperBound(lower)

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []market.Intent
	for iter.First(); iter.Valid(); iter.Next() {
		val, closer, err := s.db.Get(iter.Value())
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var row intentRow
		uerr := json.Unmarshal(val, &row)
		_ = closer.Close()
		if uerr != nil {
			return nil, fmt.Errorf("decode listing: %w", uerr)
		}
		out = append(out, market.Intent(row))
	}
	return out, iter.Error()
}

// PersistMatch durably records a completed negotiation. Records are
// immutable; the random id makes collisions a non-issue.
func (s *Store) PersistMatch(_ context.Context, rec market.MatchRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := append([]byte("match/"), rec.ID[:]...)
	return s.db.Set(key, val, pebble.Sync)
}

// -------------------- keys --------------------

func intentPrefix(item market.ItemID, side market.Side) []byte {
	k := make([]byte, 0, 7+8+1)
	k = append(k, "intent/"...)
	k = binary.BigEndian.AppendUint64(k, uint64(item))
	k = append(k, byte(side))
	return k
}

func intentKey(item market.ItemID, side market.Side, price decimal.Decimal, owner market.UserID) []byte {
	k := intentPrefix(item, side)
	k = binary.BigEndian.AppendUint64(k, uint64(price.Shift(2).IntPart()))
	k = append(k, '/')
	k = append(k, owner...)
	return k
}

func ownerPrefix(owner market.UserID) []byte {
	k := make([]byte, 0, 6+len(owner)+1)
	k = append(k, "owner/"...)
	k = append(k, owner...)
	k = append(k, 0x00)
	return k
}

func ownerKey(owner market.UserID, item market.ItemID, side market.Side) []byte {
	k := ownerPrefix(owner)
	k = binary.BigEndian.AppendUint64(k, uint64(item))
	k = append(k, byte(side))
	return k
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
