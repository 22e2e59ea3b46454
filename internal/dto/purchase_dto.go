package dto

import "time"

// PurchaseLineRequest is one requested ticket type + quantity
type PurchaseLineRequest struct {
	TicketTypeID string `json:"ticket_type_id" binding:"required"`
	Quantity     int    `json:"quantity" binding:"required"`
}

// SubmitPurchaseRequest is the request body for submitting a purchase
type SubmitPurchaseRequest struct {
	EventID      string                `json:"event_id" binding:"required"`
	Lines        []PurchaseLineRequest `json:"lines" binding:"required"`
	RequestNonce string                `json:"request_nonce,omitempty"`
}

// OrderLineResponse is one priced line of an order
type OrderLineResponse struct {
	TicketTypeID string `json:"ticket_type_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	Subtotal     int64  `json:"subtotal"`
}

// OrderResponse is the API view of an order
type OrderResponse struct {
	OrderID       string              `json:"order_id"`
	EventID       string              `json:"event_id"`
	BuyerID       string              `json:"buyer_id"`
	Status        string              `json:"status"`
	StatusReason  string              `json:"status_reason,omitempty"`
	Currency      string              `json:"currency"`
	Total         int64               `json:"total"`
	Lines         []OrderLineResponse `json:"lines"`
	PaymentToken  string              `json:"payment_token,omitempty"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
	HoldExpiresAt time.Time           `json:"hold_expires_at"`
	CreatedAt     time.Time           `json:"created_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
}

// PaginatedOrdersResponse wraps a page of orders
type PaginatedOrdersResponse struct {
	Orders   []*OrderResponse `json:"orders"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// TicketTypeResponse is a catalog ticket type merged with live availability
type TicketTypeResponse struct {
	TicketTypeID  string `json:"ticket_type_id"`
	EventID       string `json:"event_id"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"`
	IsFree        bool   `json:"is_free"`
	TotalQuantity int    `json:"total_quantity"`
	Available     int    `json:"available"`
}

// EventResponse is the API view of an event with its ticket types
type EventResponse struct {
	EventID     string               `json:"event_id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Location    string               `json:"location,omitempty"`
	StartsAt    time.Time            `json:"starts_at"`
	TicketTypes []TicketTypeResponse `json:"ticket_types"`
}

// UpdateCapacityRequest is the request body for a creator capacity edit
type UpdateCapacityRequest struct {
	TotalQuantity int `json:"total_quantity" binding:"required"`
}

// MidtransNotificationRequest is the raw webhook payload from Midtrans
type MidtransNotificationRequest struct {
	OrderID           string `json:"order_id"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	FraudStatus       string `json:"fraud_status,omitempty"`
}

// ErrorResponse is the standard error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
