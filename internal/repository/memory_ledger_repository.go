package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// MemoryLedgerRepository implements LedgerRepository with a single mutex
// guarding all counters and holds. Every operation is a short critical
// section, so reserve keeps its check-and-increment atomic under any
// number of concurrent buyers.
type MemoryLedgerRepository struct {
	mu       sync.Mutex
	counters map[string]*TicketTypeCounters
	holds    map[string]*domain.Hold
}

// NewMemoryLedgerRepository creates a new in-memory ledger
func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	return &MemoryLedgerRepository{
		counters: make(map[string]*TicketTypeCounters),
		holds:    make(map[string]*domain.Hold),
	}
}

// InitTicketType seeds counters for a ticket type if not already present
func (r *MemoryLedgerRepository) InitTicketType(ctx context.Context, c TicketTypeCounters) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.counters[c.TicketTypeID]; exists {
		return nil
	}
	cc := c
	r.counters[c.TicketTypeID] = &cc
	return nil
}

// Reserve atomically withholds quantity and returns a hold id
func (r *MemoryLedgerRepository) Reserve(ctx context.Context, ticketTypeID string, quantity int) (string, error) {
	if quantity <= 0 {
		return "", domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.counters[ticketTypeID]
	if !exists {
		return "", domain.ErrTicketTypeNotFound
	}
	if c.Available() < quantity {
		return "", domain.ErrInsufficientInventory
	}

	c.Reserved += quantity

	holdID := uuid.New().String()
	r.holds[holdID] = &domain.Hold{
		ID:           holdID,
		TicketTypeID: ticketTypeID,
		Quantity:     quantity,
		State:        domain.HoldStateHeld,
	}
	return holdID, nil
}

// Commit converts a hold into a sale; repeat commits are no-ops
func (r *MemoryLedgerRepository) Commit(ctx context.Context, holdID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.holds[holdID]
	if !exists {
		return domain.ErrHoldNotFound
	}

	switch h.State {
	case domain.HoldStateCommitted:
		return nil
	case domain.HoldStateReleased:
		return domain.ErrHoldAlreadyReleased
	}

	c := r.counters[h.TicketTypeID]
	c.Reserved -= h.Quantity
	c.Sold += h.Quantity
	h.State = domain.HoldStateCommitted
	return nil
}

// Release returns held quantity to the pool; repeat releases are no-ops
func (r *MemoryLedgerRepository) Release(ctx context.Context, holdID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.holds[holdID]
	if !exists {
		return domain.ErrHoldNotFound
	}

	switch h.State {
	case domain.HoldStateReleased:
		return nil
	case domain.HoldStateCommitted:
		return domain.ErrHoldAlreadyCommitted
	}

	c := r.counters[h.TicketTypeID]
	c.Reserved -= h.Quantity
	h.State = domain.HoldStateReleased
	return nil
}

// GetHold returns a copy of the hold
func (r *MemoryLedgerRepository) GetHold(ctx context.Context, holdID string) (*domain.Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, exists := r.holds[holdID]
	if !exists {
		return nil, domain.ErrHoldNotFound
	}
	hc := *h
	return &hc, nil
}

// Availability returns total - sold - reserved
func (r *MemoryLedgerRepository) Availability(ctx context.Context, ticketTypeID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.counters[ticketTypeID]
	if !exists {
		return 0, domain.ErrTicketTypeNotFound
	}
	return c.Available(), nil
}

// Counters returns a copy of the counter row
func (r *MemoryLedgerRepository) Counters(ctx context.Context, ticketTypeID string) (*TicketTypeCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.counters[ticketTypeID]
	if !exists {
		return nil, domain.ErrTicketTypeNotFound
	}
	cc := *c
	return &cc, nil
}

// SetCapacity sets a new total under the sold+reserved floor check
func (r *MemoryLedgerRepository) SetCapacity(ctx context.Context, ticketTypeID string, newTotal int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.counters[ticketTypeID]
	if !exists {
		return domain.ErrTicketTypeNotFound
	}
	if newTotal < c.Sold+c.Reserved {
		return domain.ErrCapacityBelowCommitted
	}
	c.Total = newTotal
	return nil
}

// Ensure MemoryLedgerRepository implements LedgerRepository
var _ LedgerRepository = (*MemoryLedgerRepository)(nil)
