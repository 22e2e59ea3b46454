package domain

import "time"

// PaymentOutcome is the gateway's settlement signal for a session.
type PaymentOutcome string

const (
	PaymentOutcomeSuccess   PaymentOutcome = "success"
	PaymentOutcomePending   PaymentOutcome = "pending"
	PaymentOutcomeFailure   PaymentOutcome = "failure"
	PaymentOutcomeCancelled PaymentOutcome = "cancelled"
)

// IsValid checks if the outcome is one the reconciler understands.
func (o PaymentOutcome) IsValid() bool {
	switch o {
	case PaymentOutcomeSuccess, PaymentOutcomePending, PaymentOutcomeFailure, PaymentOutcomeCancelled:
		return true
	}
	return false
}

// PaymentNotification is an inbound outcome message keyed by payment session.
// Gateways may redeliver the same notification any number of times.
type PaymentNotification struct {
	SessionID    string         `json:"session_id"`
	Outcome      PaymentOutcome `json:"outcome"`
	GatewayTxnID string         `json:"gateway_txn_id,omitempty"`
	ReceivedAt   time.Time      `json:"received_at"`
}
