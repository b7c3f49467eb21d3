package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func TestStateTransitions(t *testing.T) {
	all := []State{StateDraft, StatePendingPayment, StatePaid, StateShipped, StateCompleted, StateNeedResubmit, StateCancelled}
	allowed := map[State][]State{
		StateDraft:          {StatePendingPayment, StateNeedResubmit, StateCancelled},
		StatePendingPayment: {StatePaid, StateNeedResubmit, StateCancelled},
		StatePaid:           {StateShipped, StateNeedResubmit, StateCancelled},
		StateShipped:        {StateCompleted, StateNeedResubmit, StateCancelled},
		StateNeedResubmit:   {StatePendingPayment, StatePaid, StateCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
	for _, s := range []State{StateCompleted, StateCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lines := []OrderLine{
		{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("9.90")},
		{ProductID: "p2", Quantity: 1, UnitPrice: decimal.NewFromInt(5)},
	}
	o, err := NewOrder("o-1", "u-1", lines, "", now)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	if o.Status != StateDraft || o.Reservation != ReservationNone {
		t.Fatalf("unexpected initial state: %s/%s", o.Status, o.Reservation)
	}
	if !o.Amount.Equal(decimal.RequireFromString("24.80")) || o.ItemCount() != 3 {
		t.Fatalf("unexpected totals: amount=%s items=%d", o.Amount, o.ItemCount())
	}

	bad := []OrderLine{{ProductID: "p1", Quantity: 0, UnitPrice: decimal.Zero}}
	if _, err := NewOrder("o-2", "u-1", bad, "", now); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
}

func TestOrder_TransitionAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	o, _ := NewOrder("o-1", "u-1", []OrderLine{{ProductID: "p1", Quantity: 1}}, "", now)

	if err := o.TransitionTo(StatePaid, now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("draft cannot be paid, got %v", err)
	}
	if o.Status != StateDraft {
		t.Fatalf("failed transition must not change status, got %s", o.Status)
	}
	if o.Expired(now.Add(time.Hour)) {
		t.Fatal("order without a deadline never expires")
	}
	o.PaymentDueAt = now.Add(time.Minute)
	if o.Expired(now) || !o.Expired(now.Add(2*time.Minute)) {
		t.Fatal("unexpected expiry evaluation")
	}
}
