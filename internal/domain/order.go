package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusDraft          OrderStatus = "draft"
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusExpired        OrderStatus = "expired"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusPendingPayment, OrderStatusPaid,
		OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions may leave the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// validTransitions is the purchase state machine. Draft moves to
// PendingPayment once holds and a payment session exist (or to Failed when
// session creation fails); PendingPayment settles into exactly one terminal
// state.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:          {OrderStatusPendingPayment, OrderStatusFailed},
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineItem is one cart line frozen at purchase time.
type LineItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"` // price at purchase, not the live catalog price
}

// Subtotal returns the line's contribution to the order total.
func (l *LineItem) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Order represents a buyer's purchase attempt and its settlement state.
type Order struct {
	ID               string      `json:"id"`
	EventID          string      `json:"event_id"`
	BuyerID          string      `json:"buyer_id"`
	Lines            []LineItem  `json:"lines"`
	Status           OrderStatus `json:"status"`
	StatusReason     string      `json:"status_reason,omitempty"`
	Currency         string      `json:"currency"`
	IdempotencyKey   string      `json:"idempotency_key,omitempty"`
	PaymentSessionID string      `json:"payment_session_id,omitempty"`
	GatewayTxnID     string      `json:"gateway_txn_id,omitempty"`
	HoldIDs          []string    `json:"hold_ids,omitempty"`
	HoldExpiresAt    time.Time   `json:"hold_expires_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	PaidAt           *time.Time  `json:"paid_at,omitempty"`
}

// Total returns the order total in the smallest currency unit.
func (o *Order) Total() int64 {
	var total int64
	for i := range o.Lines {
		total += o.Lines[i].Subtotal()
	}
	return total
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// HoldExpired checks if the reservation window lapsed at the given instant.
func (o *Order) HoldExpired(now time.Time) bool {
	return now.After(o.HoldExpiresAt)
}

// BelongsToBuyer checks if the order belongs to the specified buyer
func (o *Order) BelongsToBuyer(buyerID string) bool {
	return o.BuyerID == buyerID
}

// IdempotencyKeyFor derives the deduplication key for a submission. Lines
// are sorted by ticket type id first so that cart ordering does not change
// the key.
func IdempotencyKeyFor(buyerID, eventID string, lines []LineItem, requestNonce string) string {
	sorted := make([]LineItem, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TicketTypeID < sorted[j].TicketTypeID
	})

	var b strings.Builder
	b.WriteString(buyerID)
	b.WriteByte('|')
	b.WriteString(eventID)
	for _, l := range sorted {
		fmt.Fprintf(&b, "|%s:%d", l.TicketTypeID, l.Quantity)
	}
	b.WriteByte('|')
	b.WriteString(requestNonce)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
