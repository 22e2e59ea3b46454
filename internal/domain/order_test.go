package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"draft to pending payment", OrderStatusDraft, OrderStatusPendingPayment, true},
		{"draft to failed", OrderStatusDraft, OrderStatusFailed, true},
		{"draft to paid", OrderStatusDraft, OrderStatusPaid, false},
		{"pending to paid", OrderStatusPendingPayment, OrderStatusPaid, true},
		{"pending to failed", OrderStatusPendingPayment, OrderStatusFailed, true},
		{"pending to cancelled", OrderStatusPendingPayment, OrderStatusCancelled, true},
		{"pending to expired", OrderStatusPendingPayment, OrderStatusExpired, true},
		{"pending to draft", OrderStatusPendingPayment, OrderStatusDraft, false},
		{"paid is terminal", OrderStatusPaid, OrderStatusFailed, false},
		{"expired is terminal", OrderStatusExpired, OrderStatusPaid, false},
		{"cancelled is terminal", OrderStatusCancelled, OrderStatusPendingPayment, false},
		{"failed is terminal", OrderStatusFailed, OrderStatusPendingPayment, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusDraft, OrderStatusPendingPayment} {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestOrder_Total(t *testing.T) {
	order := &Order{
		Lines: []LineItem{
			{TicketTypeID: "tt-1", Quantity: 2, UnitPrice: 150000},
			{TicketTypeID: "tt-2", Quantity: 1, UnitPrice: 250000},
		},
	}
	if got := order.Total(); got != 550000 {
		t.Errorf("Total() = %d, want 550000", got)
	}

	free := &Order{Lines: []LineItem{{TicketTypeID: "tt-3", Quantity: 3, UnitPrice: 0}}}
	if got := free.Total(); got != 0 {
		t.Errorf("Total() = %d, want 0", got)
	}
}

func TestOrder_HoldExpired(t *testing.T) {
	now := time.Now()
	order := &Order{HoldExpiresAt: now.Add(-time.Minute)}
	if !order.HoldExpired(now) {
		t.Error("expected hold to be expired")
	}
	order.HoldExpiresAt = now.Add(time.Minute)
	if order.HoldExpired(now) {
		t.Error("expected hold to be live")
	}
}

func TestIdempotencyKeyFor(t *testing.T) {
	lines := []LineItem{
		{TicketTypeID: "tt-b", Quantity: 1},
		{TicketTypeID: "tt-a", Quantity: 2},
	}
	reordered := []LineItem{
		{TicketTypeID: "tt-a", Quantity: 2},
		{TicketTypeID: "tt-b", Quantity: 1},
	}

	k1 := IdempotencyKeyFor("buyer-1", "event-1", lines, "nonce-1")
	k2 := IdempotencyKeyFor("buyer-1", "event-1", reordered, "nonce-1")
	if k1 != k2 {
		t.Error("line order must not change the idempotency key")
	}

	if k1 == IdempotencyKeyFor("buyer-2", "event-1", lines, "nonce-1") {
		t.Error("different buyers must get different keys")
	}
	if k1 == IdempotencyKeyFor("buyer-1", "event-1", lines, "nonce-2") {
		t.Error("different nonces must get different keys")
	}
	if k1 == IdempotencyKeyFor("buyer-1", "event-1", lines[:1], "nonce-1") {
		t.Error("different carts must get different keys")
	}
}
