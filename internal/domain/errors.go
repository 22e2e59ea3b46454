package domain

import "errors"

// Domain errors
var (
	// Lookup errors
	ErrEventNotFound      = errors.New("event not found")
	ErrTicketTypeNotFound = errors.New("ticket type not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrHoldNotFound       = errors.New("hold not found")

	// Validation errors
	ErrEmptyCart       = errors.New("cart must contain at least one line")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer within the per-order cap")
	ErrInvalidBuyerID  = errors.New("invalid buyer id")
	ErrInvalidEventID  = errors.New("invalid event id")

	// Inventory errors
	ErrInsufficientInventory  = errors.New("insufficient inventory")
	ErrCapacityBelowCommitted = errors.New("total quantity cannot drop below sold plus reserved")

	// Hold lifecycle errors
	ErrHoldAlreadyCommitted = errors.New("hold already committed")
	ErrHoldAlreadyReleased  = errors.New("hold already released")

	// Order lifecycle errors
	ErrInvalidTransition = errors.New("invalid order status transition")

	// Reconciliation errors
	ErrUnknownSession = errors.New("unknown payment session")

	// Gateway errors
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrTicketTypeNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrHoldNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidBuyerID) ||
		errors.Is(err, ErrInvalidEventID)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrCapacityBelowCommitted) ||
		errors.Is(err, ErrHoldAlreadyCommitted) ||
		errors.Is(err, ErrHoldAlreadyReleased) ||
		errors.Is(err, ErrInvalidTransition)
}
