package market

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCompatibleBuyerCoversAsk(t *testing.T) {
	if !Compatible(Buy, dec("50.00"), dec("40.00")) {
		t.Error("buyer at 50 should match seller at 40")
	}
	if Compatible(Buy, dec("39.99"), dec("40.00")) {
		t.Error("buyer at 39.99 should not match seller at 40")
	}
	if !Compatible(Sell, dec("40.00"), dec("50.00")) {
		t.Error("seller at 40 should match buyer at 50")
	}
	if Compatible(Sell, dec("50.01"), dec("50.00")) {
		t.Error("seller at 50.01 should not match buyer at 50")
	}
}

func TestCompatibleTiesTrade(t *testing.T) {
	if !Compatible(Buy, dec("25.50"), dec("25.50")) {
		t.Error("equal prices should be compatible on the buy side")
	}
	if !Compatible(Sell, dec("25.50"), dec("25.50")) {
		t.Error("equal prices should be compatible on the sell side")
	}
}

// Compatibility must hold exactly when buyer price >= seller price,
// regardless of which side the new intent is on.
func TestCompatibleProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		p := decimal.New(int64(rng.Intn(1_000_000)+1), -2)
		q := decimal.New(int64(rng.Intn(1_000_000)+1), -2)

		want := p.GreaterThanOrEqual(q)
		if got := Compatible(Buy, p, q); got != want {
			t.Fatalf("Buy p=%s q=%s: got %v want %v", p, q, got, want)
		}
		// Seller at q against buyer at p is the mirrored case.
		if got := Compatible(Sell, q, p); got != want {
			t.Fatalf("Sell q=%s p=%s: got %v want %v", q, p, got, want)
		}
	}
}

func TestMatchCandidatesFiltersAndKeepsOrder(t *testing.T) {
	in := Intent{Owner: "alice", ItemID: 7, Side: Buy, Price: dec("50.00")}
	opposite := []Intent{
		{Owner: "bob", ItemID: 7, Side: Sell, Price: dec("40.00")},
		{Owner: "carol", ItemID: 7, Side: Sell, Price: dec("45.00")},
		{Owner: "dave", ItemID: 7, Side: Sell, Price: dec("50.00")},
		{Owner: "erin", ItemID: 7, Side: Sell, Price: dec("60.00")},
	}

	got := MatchCandidates(in, opposite)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	wantOrder := []UserID{"bob", "carol", "dave"}
	for i, w := range wantOrder {
		if got[i].Counterparty != w {
			t.Errorf("candidate %d: got %s want %s", i, got[i].Counterparty, w)
		}
	}
}

func TestMatchCandidatesEmptyBook(t *testing.T) {
	in := Intent{Owner: "alice", ItemID: 7, Side: Sell, Price: dec("10.00")}
	if got := MatchCandidates(in, nil); len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestMatchCandidatesExcludesSelf(t *testing.T) {
	in := Intent{Owner: "alice", ItemID: 7, Side: Buy, Price: dec("50.00")}
	opposite := []Intent{
		{Owner: "alice", ItemID: 7, Side: Sell, Price: dec("10.00")},
		{Owner: "bob", ItemID: 7, Side: Sell, Price: dec("20.00")},
	}
	got := MatchCandidates(in, opposite)
	if len(got) != 1 || got[0].Counterparty != "bob" {
		t.Fatalf("self-match not excluded: %+v", got)
	}
}
