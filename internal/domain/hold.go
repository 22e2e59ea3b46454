package domain

// HoldState tracks the lifecycle of an inventory hold.
type HoldState string

const (
	HoldStateHeld      HoldState = "held"
	HoldStateCommitted HoldState = "committed"
	HoldStateReleased  HoldState = "released"
)

// Hold is a provisional claim on a single ticket type's inventory,
// pending the payment outcome of the order that acquired it.
type Hold struct {
	ID           string    `json:"id"`
	TicketTypeID string    `json:"ticket_type_id"`
	Quantity     int       `json:"quantity"`
	State        HoldState `json:"state"`
}
