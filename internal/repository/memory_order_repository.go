package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// MemoryOrderRepository implements OrderRepository using in-memory storage.
// Used by the test suite and local development.
type MemoryOrderRepository struct {
	orders        map[string]*domain.Order
	byIdempotency map[string]string // idempotencyKey -> orderID
	bySession     map[string]string // paymentSessionID -> orderID
	byBuyer       map[string][]string
	mu            sync.RWMutex
}

// NewMemoryOrderRepository creates a new in-memory order repository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:        make(map[string]*domain.Order),
		byIdempotency: make(map[string]string),
		bySession:     make(map[string]string),
		byBuyer:       make(map[string][]string),
	}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.LineItem(nil), o.Lines...)
	c.HoldIDs = append([]string(nil), o.HoldIDs...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Create persists a new order
func (r *MemoryOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	if order.IdempotencyKey != "" {
		if _, exists := r.byIdempotency[order.IdempotencyKey]; exists {
			return fmt.Errorf("idempotency key already used")
		}
	}

	r.orders[order.ID] = cloneOrder(order)
	if order.IdempotencyKey != "" {
		r.byIdempotency[order.IdempotencyKey] = order.ID
	}
	if order.PaymentSessionID != "" {
		r.bySession[order.PaymentSessionID] = order.ID
	}
	r.byBuyer[order.BuyerID] = append(r.byBuyer[order.BuyerID], order.ID)
	return nil
}

// GetByID retrieves an order by its ID
func (r *MemoryOrderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, exists := r.orders[orderID]
	if !exists {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

// GetByBuyerID retrieves a buyer's orders, newest first
func (r *MemoryOrderRepository) GetByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byBuyer[buyerID]
	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		if o, exists := r.orders[id]; exists {
			orders = append(orders, cloneOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	if offset >= len(orders) {
		return []*domain.Order{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end], nil
}

// GetByIdempotencyKey retrieves the order created under the given key
func (r *MemoryOrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byIdempotency[key]
	if !exists {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

// GetByPaymentSessionID retrieves the order owning a payment session
func (r *MemoryOrderRepository) GetByPaymentSessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.bySession[sessionID]
	if !exists {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

// SetPaymentSession records the session id on an order, once
func (r *MemoryOrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, exists := r.orders[orderID]
	if !exists {
		return domain.ErrOrderNotFound
	}
	if o.PaymentSessionID != "" {
		return fmt.Errorf("payment session already assigned to order %s", orderID)
	}
	o.PaymentSessionID = sessionID
	o.UpdatedAt = time.Now().UTC()
	r.bySession[sessionID] = orderID
	return nil
}

// SetGatewayTxn records the gateway transaction id
func (r *MemoryOrderRepository) SetGatewayTxn(ctx context.Context, orderID, gatewayTxnID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, exists := r.orders[orderID]
	if !exists {
		return domain.ErrOrderNotFound
	}
	o.GatewayTxnID = gatewayTxnID
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// TransitionStatus moves an order between statuses as a compare-and-set
func (r *MemoryOrderRepository) TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, exists := r.orders[orderID]
	if !exists {
		return domain.ErrOrderNotFound
	}
	if o.Status != from || !domain.CanTransition(from, to) {
		return domain.ErrInvalidTransition
	}

	now := time.Now().UTC()
	o.Status = to
	o.StatusReason = reason
	o.UpdatedAt = now
	if to == domain.OrderStatusPaid {
		o.PaidAt = &now
	}
	return nil
}

// GetExpiredPending returns pending-payment orders past their hold deadline
func (r *MemoryOrderRepository) GetExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusPendingPayment && now.After(o.HoldExpiresAt) {
			expired = append(expired, cloneOrder(o))
			if limit > 0 && len(expired) >= limit {
				break
			}
		}
	}
	return expired, nil
}

// Clear clears all data (for testing)
func (r *MemoryOrderRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders = make(map[string]*domain.Order)
	r.byIdempotency = make(map[string]string)
	r.bySession = make(map[string]string)
	r.byBuyer = make(map[string][]string)
}

// Ensure MemoryOrderRepository implements OrderRepository
var _ OrderRepository = (*MemoryOrderRepository)(nil)
