// Package outbox stages completed matches in pebble for at-least-once
// publication. The engine writes a record in the same flow that commits the
// completion; the broadcaster job drains pending records into Kafka, so a
// crash between commit and publish loses nothing.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"bazaar/domain/market"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type Record struct {
	MatchID     uuid.UUID
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][retries:4][lastAttempt:8][payload...]
func encodeRecord(r Record) []byte {
	buf := make([]byte, 1+4+8, 1+4+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	return append(buf, r.Payload...)
}

func decodeRecord(id uuid.UUID, b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("invalid outbox record length")
	}
	return Record{
		MatchID:     id,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[13:]...),
	}, nil
}

// -------------------- Outbox --------------------

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Stage inserts a NEW entry for a completed match.
func (o *Outbox) Stage(_ context.Context, rec market.MatchRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return o.db.Set(keyFor(rec.ID), encodeRecord(Record{
		MatchID: rec.ID,
		State:   StateNew,
		Payload: payload,
	}), pebble.Sync)
}

// MarkSent flags a record as handed to the broker, before the ack arrives.
func (o *Outbox) MarkSent(id uuid.UUID) error {
	return o.transition(id, StateSent, 0)
}

// MarkAcked flags a record as durably published.
func (o *Outbox) MarkAcked(id uuid.UUID) error {
	return o.transition(id, StateAcked, 0)
}

// MarkFailed records a failed publish attempt.
func (o *Outbox) MarkFailed(id uuid.UUID, retries uint32) error {
	return o.transition(id, StateFailed, retries)
}

func (o *Outbox) transition(id uuid.UUID, state State, retries uint32) error {
	rec, err := o.Get(id)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(id), encodeRecord(rec), pebble.Sync)
}

// Get returns the record for one match.
func (o *Outbox) Get(id uuid.UUID) (Record, error) {
	val, closer, err := o.db.Get(keyFor(id))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeRecord(id, val)
}

// Delete removes an ACKED record during cleanup.
func (o *Outbox) Delete(id uuid.UUID) error {
	return o.db.Delete(keyFor(id), pebble.Sync)
}

// ScanPending iterates every record not yet acked. SENT records are
// included: the process may have died between send and ack, and the topic
// is consumed idempotently.
func (o *Outbox) ScanPending(fn func(rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("match/"),
		UpperBound: []byte("match0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != len("match/")+16 {
			return fmt.Errorf("malformed outbox key %q", key)
		}
		id, err := uuid.FromBytes(key[len("match/"):])
		if err != nil {
			return err
		}
		rec, err := decodeRecord(id, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(id uuid.UUID) []byte {
	return append([]byte("match/"), id[:]...)
}
