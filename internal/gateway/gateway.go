package gateway

import (
	"context"
)

// SessionRequest describes the checkout session to open with the payment
// provider. Amount is in the smallest currency unit (whole rupiah for IDR).
type SessionRequest struct {
	OrderID       string
	BuyerID       string
	Amount        int64
	Currency      string
	ItemDetails   []ItemDetail
	CallbackURL   string
	ExpiryMinutes int
}

// ItemDetail is a single line shown on the provider's checkout page
type ItemDetail struct {
	ID       string
	Name     string
	Price    int64
	Quantity int
}

// Session is the provider-side checkout session. ID is generated by the
// adapter and doubles as the provider's order reference, so incoming
// notifications can be mapped back to the owning order.
type Session struct {
	ID          string
	Token       string
	RedirectURL string
}

// PaymentGateway abstracts the external payment provider. Implementations
// must return ErrGatewayUnavailable-classified errors (see domain) when the
// provider cannot be reached, so callers can roll back inventory holds.
type PaymentGateway interface {
	// CreateSession opens a checkout session for the given order.
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)

	// Name returns the gateway name for logging.
	Name() string
}
