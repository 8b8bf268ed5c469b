package billing

import "time"

type Status string

const (
	StatusPending               Status = "pending"
	StatusProcessing            Status = "processing"
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusSucceeded             Status = "succeeded"
	StatusFailed                Status = "failed"
	StatusRefunded              Status = "refunded"
)

type Payment struct {
	ID              string    `json:"id"`
	BookingID       string    `json:"booking_id"`
	UserID          string    `json:"user_id"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Status          Status    `json:"status"`
	PaymentIntentID string    `json:"payment_intent_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FromGatewayStatus maps the gateway's intent vocabulary onto the internal
// enum. Unknown statuses map to pending rather than failing, so a new or
// benign gateway status never corrupts local state.
func FromGatewayStatus(s string) Status {
	switch s {
	case "requires_payment_method":
		return StatusRequiresPaymentMethod
	case "requires_confirmation", "requires_action", "requires_capture", "processing":
		return StatusProcessing
	case "succeeded":
		return StatusSucceeded
	case "canceled":
		return StatusFailed
	default:
		return StatusPending
	}
}

// canTransition guards gateway-driven status writes. succeeded can only move
// to refunded and refunded is terminal; everything else keeps the permissive
// set-status semantics so the synchronous path and the webhook can race in
// either order.
func canTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusSucceeded:
		return to == StatusRefunded
	case StatusRefunded:
		return false
	default:
		return true
	}
}
