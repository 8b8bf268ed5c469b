package redisx

import "time"

const (
	// Fast-path mirror of a stored payment-intent response:
	// idem:payment:intent:{idempotency_key} -> response JSON.
	// Read optimization only; the idempotency_keys table is authoritative.
	KeyIdemPaymentIntent = "idem:payment:intent:%s"

	// Dedup for event processing: dedup:{service}:{id}
	// (id = gateway event id for webhooks, event_id for settlement messages)
	KeyDedup = "dedup:%s:%s"

	// Cache of a payment row for fast GETs: payment:{payment_id}
	KeyPayment = "payment:%s"
)

var (
	TTLIdemPaymentIntent = 24 * time.Hour
	TTLDedup             = 48 * time.Hour
	TTLPaymentCache      = 5 * time.Minute
)
