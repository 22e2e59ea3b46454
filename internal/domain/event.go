package domain

import "time"

// Event represents an event listed in the catalog.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`

	// TicketTypes is ordered as declared by the creator.
	TicketTypes []TicketType `json:"ticket_types"`
}

// TicketType is a priced or free admission category with its own capacity.
type TicketType struct {
	ID               string `json:"id"`
	EventID          string `json:"event_id"`
	Name             string `json:"name"`
	UnitPrice        int64  `json:"unit_price"` // smallest currency unit, 0 when free
	IsFree           bool   `json:"is_free"`
	TotalQuantity    int    `json:"total_quantity"`
	ReservedQuantity int    `json:"reserved_quantity"`
	SoldQuantity     int    `json:"sold_quantity"`
}

// Available returns the quantity still open to new reservations.
func (t *TicketType) Available() int {
	return t.TotalQuantity - t.SoldQuantity - t.ReservedQuantity
}

// CanResize reports whether the total quantity may be changed to newTotal.
// Capacity may grow freely but never shrinks below what is already
// sold or held.
func (t *TicketType) CanResize(newTotal int) bool {
	return newTotal >= t.SoldQuantity+t.ReservedQuantity
}
