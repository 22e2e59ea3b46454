package repository

import (
	"context"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// CatalogRepository provides read access to events and their ticket type
// definitions. The purchase flow never writes through it. Capacity edits
// from the creator surface update the declared total here only after the
// ledger has accepted the new capacity against its live counters.
type CatalogRepository interface {
	// GetEvent returns an event with its ticket types in declared order.
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)

	// GetTicketTypes returns the ordered ticket types of an event.
	GetTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error)

	// GetTicketType returns a single ticket type by id.
	GetTicketType(ctx context.Context, ticketTypeID string) (*domain.TicketType, error)

	// UpdateTicketTypeCapacity sets a new total quantity for a ticket type.
	UpdateTicketTypeCapacity(ctx context.Context, ticketTypeID string, newTotal int) error
}
