package repository

import (
	"context"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// TicketTypeCounters is the ledger's view of one ticket type.
type TicketTypeCounters struct {
	TicketTypeID string
	Total        int
	Reserved     int
	Sold         int
}

// Available returns the quantity open to new reservations.
func (c *TicketTypeCounters) Available() int {
	return c.Total - c.Sold - c.Reserved
}

// LedgerRepository is the sole mutator of ticket type counters. Reserve is
// the oversell barrier: a single atomic check-and-increment per ticket type,
// never a separate read-then-write. Commit and Release are idempotent so
// redelivered gateway notifications cannot double-count.
type LedgerRepository interface {
	// InitTicketType seeds counters for a ticket type. Existing counters
	// are left untouched so restarts do not clobber live state.
	InitTicketType(ctx context.Context, counters TicketTypeCounters) error

	// Reserve atomically withholds quantity from the available pool and
	// returns a hold id. Fails with ErrInsufficientInventory when
	// available < quantity and with ErrTicketTypeNotFound for unseeded ids.
	Reserve(ctx context.Context, ticketTypeID string, quantity int) (string, error)

	// Commit converts a hold into a permanent sale. Committing an already
	// committed hold is a no-op; committing a released hold reports
	// ErrHoldAlreadyReleased.
	Commit(ctx context.Context, holdID string) error

	// Release returns held quantity to the pool. Releasing an already
	// released hold is a no-op; releasing a committed hold reports
	// ErrHoldAlreadyCommitted.
	Release(ctx context.Context, holdID string) error

	// GetHold returns the current state of a hold.
	GetHold(ctx context.Context, holdID string) (*domain.Hold, error)

	// Availability returns total - sold - reserved for a ticket type.
	Availability(ctx context.Context, ticketTypeID string) (int, error)

	// Counters returns the full counter row for a ticket type.
	Counters(ctx context.Context, ticketTypeID string) (*TicketTypeCounters, error)

	// SetCapacity sets a new total, rejecting with ErrCapacityBelowCommitted
	// any value below sold + reserved. The check and the write are a single
	// atomic step.
	SetCapacity(ctx context.Context, ticketTypeID string, newTotal int) error
}
