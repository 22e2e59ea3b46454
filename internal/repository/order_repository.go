package repository

import (
	"context"
	"time"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// OrderRepository is the sole mutator of order status. TransitionStatus is a
// compare-and-set: concurrent settlement signals race on it and exactly one
// wins, the loser observing ErrInvalidTransition.
type OrderRepository interface {
	// Create persists a new order. The order's idempotency key must be
	// unique; a second create with the same key fails.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID returns an order by id.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// GetByBuyerID returns a buyer's orders, newest first.
	GetByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*domain.Order, error)

	// GetByIdempotencyKey returns the order created under the given key,
	// or ErrOrderNotFound.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)

	// GetByPaymentSessionID returns the order owning a payment session,
	// or ErrOrderNotFound.
	GetByPaymentSessionID(ctx context.Context, sessionID string) (*domain.Order, error)

	// SetPaymentSession records the session id on an order. Assigned once;
	// a second assignment fails.
	SetPaymentSession(ctx context.Context, orderID, sessionID string) error

	// SetGatewayTxn records the gateway transaction id reported at settlement.
	SetGatewayTxn(ctx context.Context, orderID, gatewayTxnID string) error

	// TransitionStatus moves an order from one status to another. It fails
	// with ErrInvalidTransition when the current status differs from `from`
	// or the state machine forbids the move.
	TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, reason string) error

	// GetExpiredPending returns orders still pending payment whose hold
	// deadline passed before now.
	GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error)
}
