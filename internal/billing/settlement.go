package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	kafkax "github.com/tripwell/booking-platform/internal/kafka"
	"github.com/tripwell/booking-platform/internal/redisx"
)

// SettlementQueue carries mock-mode settlement requests out of the request
// lifetime. The billing service consumes its own queue, so the continuation
// survives a crashed request handler and is observable in tests.
type SettlementQueue interface {
	Enqueue(trace, paymentID string)
}

// KafkaSettlements publishes settlement requests to billing.settlement as a
// message to self.
type KafkaSettlements struct {
	Producer *kafkax.Producer
	Service  string
}

func (q *KafkaSettlements) Enqueue(trace, paymentID string) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventSettlementRequested,
		EventVersion:  currentEnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      q.Service,
		TraceID:       trace,
		CorrelationID: paymentID,
		Payload:       kafkax.MustMarshal(SettlementRequestedPayload{PaymentID: paymentID}),
	}
	q.Producer.Publish([]byte(paymentID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventSettlementRequested)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Settler consumes billing.settlement and drives the payment success path.
// Delivery is at-least-once; the status guard plus the Redis dedup make a
// duplicate message a no-op.
type Settler struct {
	Engine *Engine
	Redis  *redis.Client // optional dedup
}

func (s *Settler) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != EventSettlementRequested {
		return nil
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "settlement", env.EventID)
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafkax.UnwrapPayload[SettlementRequestedPayload](env.Payload)
	if err != nil {
		return err
	}

	err = s.Engine.SettlePayment(ctx, p.PaymentID, env.TraceID)
	if errors.Is(err, ErrPaymentNotFound) {
		// Settlement for a payment we never persisted; drop it.
		return nil
	}
	return err
}
