package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/domain/market"
)

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	o, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func testRecord() market.MatchRecord {
	return market.MatchRecord{
		ID:         uuid.New(),
		Buyer:      "buyer",
		Seller:     "seller",
		ItemID:     7,
		FinalPrice: decimal.New(4000, -2),
		SessionID:  uuid.New(),
	}
}

func TestStageAndScan(t *testing.T) {
	o := openTestOutbox(t)
	rec := testRecord()
	require.NoError(t, o.Stage(context.Background(), rec))

	var seen []Record
	require.NoError(t, o.ScanPending(func(r Record) error {
		seen = append(seen, r)
		return nil
	}))
	require.Len(t, seen, 1)
	assert.Equal(t, rec.ID, seen[0].MatchID)
	assert.Equal(t, StateNew, seen[0].State)

	var got market.MatchRecord
	require.NoError(t, json.Unmarshal(seen[0].Payload, &got))
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.True(t, got.FinalPrice.Equal(rec.FinalPrice))
}

func TestLifecycleNewSentAcked(t *testing.T) {
	o := openTestOutbox(t)
	rec := testRecord()
	require.NoError(t, o.Stage(context.Background(), rec))

	require.NoError(t, o.MarkSent(rec.ID))
	got, err := o.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSent, got.State)
	assert.NotZero(t, got.LastAttempt)

	// SENT is still pending: an unacked send must be replayed.
	count := 0
	require.NoError(t, o.ScanPending(func(Record) error { count++; return nil }))
	assert.Equal(t, 1, count)

	require.NoError(t, o.MarkAcked(rec.ID))
	count = 0
	require.NoError(t, o.ScanPending(func(Record) error { count++; return nil }))
	assert.Zero(t, count, "acked records are done")
}

func TestMarkFailedKeepsPending(t *testing.T) {
	o := openTestOutbox(t)
	rec := testRecord()
	require.NoError(t, o.Stage(context.Background(), rec))
	require.NoError(t, o.MarkFailed(rec.ID, 3))

	got, err := o.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, uint32(3), got.Retries)

	count := 0
	require.NoError(t, o.ScanPending(func(Record) error { count++; return nil }))
	assert.Equal(t, 1, count)
}

func TestDelete(t *testing.T) {
	o := openTestOutbox(t)
	rec := testRecord()
	require.NoError(t, o.Stage(context.Background(), rec))
	require.NoError(t, o.MarkAcked(rec.ID))
	require.NoError(t, o.Delete(rec.ID))

	_, err := o.Get(rec.ID)
	assert.Error(t, err)
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	o, err := Open(dir)
	require.NoError(t, err)
	rec := testRecord()
	require.NoError(t, o.Stage(context.Background(), rec))
	require.NoError(t, o.Close())

	o, err = Open(dir)
	require.NoError(t, err)
	defer o.Close()

	got, err := o.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StateNew, got.State)
}
