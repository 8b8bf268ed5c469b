package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	kafkax "github.com/tripwell/booking-platform/internal/kafka"
)

const (
	EventPaymentSucceeded    = "PaymentSucceeded"
	EventPaymentFailed       = "PaymentFailed"
	EventPaymentConfirmation = "PaymentConfirmation"
	EventSettlementRequested = "SettlementRequested"
	currentEnvelopeVersion   = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // booking_id
	Payload       json.RawMessage `json:"payload"`
}

type PaymentSucceededPayload struct {
	PaymentID       string `json:"payment_id"`
	BookingID       string `json:"booking_id"`
	UserID          string `json:"user_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	PaymentIntentID string `json:"payment_intent_id"`
}

type PaymentFailedPayload struct {
	PaymentID       string `json:"payment_id"`
	BookingID       string `json:"booking_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason,omitempty"`
}

type PaymentConfirmationPayload struct {
	PaymentID   string `json:"payment_id"`
	BookingID   string `json:"booking_id"`
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type SettlementRequestedPayload struct {
	PaymentID string `json:"payment_id"`
}

// EventEmitter publishes payment lifecycle facts. Downstream consumers get
// at-least-once delivery and must treat handlers as idempotent.
type EventEmitter interface {
	PaymentSucceeded(trace string, p Payment)
	PaymentFailed(trace string, p Payment, reason string)
}

// KafkaEmitter fans a succeeded payment out to payment.events and
// payment-confirmation; failures go to payment.events only.
type KafkaEmitter struct {
	Events        *kafkax.Producer
	Confirmations *kafkax.Producer
	Service       string
}

func (e *KafkaEmitter) PaymentSucceeded(trace string, p Payment) {
	e.publish(e.Events, trace, p.BookingID, EventPaymentSucceeded, PaymentSucceededPayload{
		PaymentID:       p.ID,
		BookingID:       p.BookingID,
		UserID:          p.UserID,
		AmountCents:     p.AmountCents,
		Currency:        p.Currency,
		PaymentIntentID: p.PaymentIntentID,
	})
	e.publish(e.Confirmations, trace, p.BookingID, EventPaymentConfirmation, PaymentConfirmationPayload{
		PaymentID:   p.ID,
		BookingID:   p.BookingID,
		UserID:      p.UserID,
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
	})
}

func (e *KafkaEmitter) PaymentFailed(trace string, p Payment, reason string) {
	e.publish(e.Events, trace, p.BookingID, EventPaymentFailed, PaymentFailedPayload{
		PaymentID:       p.ID,
		BookingID:       p.BookingID,
		PaymentIntentID: p.PaymentIntentID,
		Reason:          reason,
	})
}

func (e *KafkaEmitter) publish(prod *kafkax.Producer, trace, bookingID, eventType string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  currentEnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       trace,
		CorrelationID: bookingID,
		Payload:       kafkax.MustMarshal(payload),
	}
	prod.Publish(PartitionKey(bookingID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
