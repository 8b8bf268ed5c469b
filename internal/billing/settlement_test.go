package billing

import (
	"context"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/tripwell/booking-platform/internal/clock"
	kafkax "github.com/tripwell/booking-platform/internal/kafka"
)

func settlementMessage(t *testing.T, eventID, paymentID string) kafkago.Message {
	t.Helper()
	env := Envelope{
		EventID:      eventID,
		EventType:    EventSettlementRequested,
		EventVersion: currentEnvelopeVersion,
		OccurredAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Producer:     "billing-test",
		Payload:      kafkax.MustMarshal(SettlementRequestedPayload{PaymentID: paymentID}),
	}
	return kafkago.Message{Key: []byte(paymentID), Value: kafkax.MustMarshal(env)}
}

func TestSettler_HandleMessage(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("settles the payment and survives redelivery", func(t *testing.T) {
		store := newFakeStore()
		em := &fakeEmitter{}
		s := &Settler{Engine: NewEngine(store, NewMockGateway(), em, nil, clock.NewFixed(now))}
		store.payments["p1"] = Payment{ID: "p1", BookingID: "b1", Status: StatusPending}

		msg := settlementMessage(t, "evt-1", "p1")
		if err := s.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if store.payments["p1"].Status != StatusSucceeded {
			t.Fatalf("expected succeeded, got %s", store.payments["p1"].Status)
		}

		if err := s.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("redelivery: %v", err)
		}
		if len(em.succeeded) != 1 {
			t.Fatalf("expected a single emit across redeliveries, got %d", len(em.succeeded))
		}
	})

	t.Run("unknown payment is dropped", func(t *testing.T) {
		s := &Settler{Engine: NewEngine(newFakeStore(), NewMockGateway(), &fakeEmitter{}, nil, clock.NewFixed(now))}
		if err := s.HandleMessage(context.Background(), settlementMessage(t, "evt-1", "ghost")); err != nil {
			t.Fatalf("expected drop without error, got %v", err)
		}
	})

	t.Run("foreign event types are skipped", func(t *testing.T) {
		store := newFakeStore()
		s := &Settler{Engine: NewEngine(store, NewMockGateway(), &fakeEmitter{}, nil, clock.NewFixed(now))}
		store.payments["p1"] = Payment{ID: "p1", Status: StatusPending}

		env := Envelope{EventID: "evt-1", EventType: EventPaymentSucceeded, Payload: kafkax.MustMarshal(SettlementRequestedPayload{PaymentID: "p1"})}
		msg := kafkago.Message{Value: kafkax.MustMarshal(env)}
		if err := s.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if store.payments["p1"].Status != StatusPending {
			t.Fatalf("expected untouched, got %s", store.payments["p1"].Status)
		}
	})

	t.Run("malformed envelope", func(t *testing.T) {
		s := &Settler{Engine: NewEngine(newFakeStore(), NewMockGateway(), &fakeEmitter{}, nil, clock.NewFixed(now))}
		if err := s.HandleMessage(context.Background(), kafkago.Message{Value: []byte("{broken")}); err == nil {
			t.Fatalf("expected error for malformed envelope")
		}
	})
}
