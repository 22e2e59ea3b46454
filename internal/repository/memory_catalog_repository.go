package repository

import (
	"context"
	"sync"

	"github.com/tobslayerr/sievent-ticketing/internal/domain"
)

// MemoryCatalogRepository implements CatalogRepository using in-memory
// storage. Used by the test suite and local development.
type MemoryCatalogRepository struct {
	events       map[string]*domain.Event
	ticketTypes  map[string]*domain.TicketType
	typesByEvent map[string][]string
	mu           sync.RWMutex
}

// NewMemoryCatalogRepository creates a new in-memory catalog
func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{
		events:       make(map[string]*domain.Event),
		ticketTypes:  make(map[string]*domain.TicketType),
		typesByEvent: make(map[string][]string),
	}
}

// PutEvent stores an event and its ticket types (seeding helper)
func (r *MemoryCatalogRepository) PutEvent(event *domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := *event
	r.events[event.ID] = &e
	r.typesByEvent[event.ID] = nil
	for i := range event.TicketTypes {
		tt := event.TicketTypes[i]
		tt.EventID = event.ID
		r.ticketTypes[tt.ID] = &tt
		r.typesByEvent[event.ID] = append(r.typesByEvent[event.ID], tt.ID)
	}
}

// GetEvent returns an event with its ticket types in declared order
func (r *MemoryCatalogRepository) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.events[eventID]
	if !exists {
		return nil, domain.ErrEventNotFound
	}

	ec := *e
	ec.TicketTypes = nil
	for _, id := range r.typesByEvent[eventID] {
		ec.TicketTypes = append(ec.TicketTypes, *r.ticketTypes[id])
	}
	return &ec, nil
}

// GetTicketTypes returns the ordered ticket types of an event
func (r *MemoryCatalogRepository) GetTicketTypes(ctx context.Context, eventID string) ([]domain.TicketType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.events[eventID]; !exists {
		return nil, domain.ErrEventNotFound
	}

	var types []domain.TicketType
	for _, id := range r.typesByEvent[eventID] {
		types = append(types, *r.ticketTypes[id])
	}
	return types, nil
}

// GetTicketType returns a single ticket type by id
func (r *MemoryCatalogRepository) GetTicketType(ctx context.Context, ticketTypeID string) (*domain.TicketType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tt, exists := r.ticketTypes[ticketTypeID]
	if !exists {
		return nil, domain.ErrTicketTypeNotFound
	}
	ttc := *tt
	return &ttc, nil
}

// UpdateTicketTypeCapacity sets the declared total for a ticket type
func (r *MemoryCatalogRepository) UpdateTicketTypeCapacity(ctx context.Context, ticketTypeID string, newTotal int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tt, exists := r.ticketTypes[ticketTypeID]
	if !exists {
		return domain.ErrTicketTypeNotFound
	}
	tt.TotalQuantity = newTotal
	return nil
}

// Ensure MemoryCatalogRepository implements CatalogRepository
var _ CatalogRepository = (*MemoryCatalogRepository)(nil)
