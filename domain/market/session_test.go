package market

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(uuid.New(), "buyer", "seller", 7, dec("50.00"), dec("40.00"), time.Now())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestNewSessionRejectsSameParty(t *testing.T) {
	_, err := NewSession(uuid.New(), "alice", "alice", 7, dec("1.00"), dec("1.00"), time.Now())
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDoubleConfirmCompletesAtLowerPrice(t *testing.T) {
	s := newTestSession(t)

	if err := s.Confirm("buyer"); err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	if s.Status != Open || !s.BuyerConfirmed || s.SellerConfirmed {
		t.Fatalf("after buyer confirm: status=%v buyer=%v seller=%v", s.Status, s.BuyerConfirmed, s.SellerConfirmed)
	}
	if !s.Proposed.Equal(dec("40.00")) {
		t.Fatalf("default proposed price should be min(50,40), got %s", s.Proposed)
	}

	if err := s.Confirm("seller"); err != nil {
		t.Fatalf("seller confirm: %v", err)
	}
	if s.Status != Completed {
		t.Fatalf("expected Completed, got %v", s.Status)
	}
	if !s.Proposed.Equal(dec("40.00")) {
		t.Fatalf("final price should be 40.00, got %s", s.Proposed)
	}
}

func TestProposeClearsConfirmations(t *testing.T) {
	cases := []struct{ buyer, seller bool }{
		{false, false}, {true, false}, {false, true},
	}
	for _, c := range cases {
		s := newTestSession(t)
		s.BuyerConfirmed = c.buyer
		s.SellerConfirmed = c.seller

		if err := s.Propose("seller", dec("45.00")); err != nil {
			t.Fatalf("propose: %v", err)
		}
		if s.BuyerConfirmed || s.SellerConfirmed {
			t.Errorf("confirmations not cleared from %+v", c)
		}
		if !s.Proposed.Equal(dec("45.00")) {
			t.Errorf("proposed price not updated, got %s", s.Proposed)
		}
		if s.Status != Open {
			t.Errorf("propose must keep the session open, got %v", s.Status)
		}
	}
}

func TestProposeAfterConfirmRequiresReconfirm(t *testing.T) {
	s := newTestSession(t)
	if err := s.Confirm("buyer"); err != nil {
		t.Fatal(err)
	}
	if err := s.Propose("seller", dec("45.00")); err != nil {
		t.Fatal(err)
	}
	// The buyer's old confirmation must not carry over to the new price.
	if err := s.Confirm("seller"); err != nil {
		t.Fatal(err)
	}
	if s.Status != Open {
		t.Fatalf("single fresh confirm must not complete, got %v", s.Status)
	}
	if err := s.Confirm("buyer"); err != nil {
		t.Fatal(err)
	}
	if s.Status != Completed || !s.Proposed.Equal(dec("45.00")) {
		t.Fatalf("expected completion at 45.00, got %v at %s", s.Status, s.Proposed)
	}
}

func TestProposeRejectsBadPrice(t *testing.T) {
	s := newTestSession(t)
	for _, bad := range []string{"0", "-5.00", "0.001", "1000000000"} {
		err := s.Propose("buyer", dec(bad))
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("price %s: expected ValidationError, got %v", bad, err)
		}
	}
	if !s.Proposed.IsZero() || s.Status != Open {
		t.Error("rejected proposal must not mutate the session")
	}
}

func TestConfirmIdempotentPerParty(t *testing.T) {
	s := newTestSession(t)
	if err := s.Confirm("buyer"); err != nil {
		t.Fatal(err)
	}
	if err := s.Confirm("buyer"); err != nil {
		t.Fatalf("repeat confirm should be a no-op, got %v", err)
	}
	if s.Status != Open || !s.BuyerConfirmed || s.SellerConfirmed {
		t.Fatalf("repeat confirm changed state: %+v", s)
	}
}

func TestCancelFromEitherParty(t *testing.T) {
	for _, actor := range []UserID{"buyer", "seller"} {
		s := newTestSession(t)
		if err := s.Confirm("buyer"); err != nil {
			t.Fatal(err)
		}
		if err := s.Cancel(actor); err != nil {
			t.Fatalf("cancel by %s: %v", actor, err)
		}
		if s.Status != Cancelled {
			t.Fatalf("cancel by %s: got %v", actor, s.Status)
		}
	}
}

func TestStrangerRejected(t *testing.T) {
	s := newTestSession(t)
	for name, act := range map[string]func() error{
		"confirm": func() error { return s.Confirm("mallory") },
		"propose": func() error { return s.Propose("mallory", dec("1.00")) },
		"cancel":  func() error { return s.Cancel("mallory") },
	} {
		if err := act(); !errors.Is(err, ErrNotParticipant) {
			t.Errorf("%s by stranger: expected ErrNotParticipant, got %v", name, err)
		}
	}
	if s.Status != Open || s.BuyerConfirmed || s.SellerConfirmed || !s.Proposed.IsZero() {
		t.Error("rejected action mutated the session")
	}
}

func TestTerminalSessionRejectsActions(t *testing.T) {
	completed := newTestSession(t)
	_ = completed.Confirm("buyer")
	_ = completed.Confirm("seller")

	cancelled := newTestSession(t)
	_ = cancelled.Cancel("buyer")

	for _, tc := range []struct {
		s    *Session
		want Status
	}{
		{completed, Completed},
		{cancelled, Cancelled},
	} {
		err := tc.s.Confirm("buyer")
		var se *StateError
		if !errors.As(err, &se) {
			t.Fatalf("expected StateError, got %v", err)
		}
		if se.Status != tc.want {
			t.Errorf("error should carry %v, got %v", tc.want, se.Status)
		}
		if tc.s.Status != tc.want {
			t.Errorf("terminal state changed to %v", tc.s.Status)
		}
	}
}

func TestExpireOnlyAffectsOpenSessions(t *testing.T) {
	s := newTestSession(t)
	s.Expire()
	if s.Status != Cancelled {
		t.Fatalf("expected Cancelled, got %v", s.Status)
	}

	done := newTestSession(t)
	_ = done.Confirm("buyer")
	_ = done.Confirm("seller")
	done.Expire()
	if done.Status != Completed {
		t.Fatalf("expire must not touch a completed session, got %v", done.Status)
	}
}
