package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tripwell/booking-platform/internal/clock"
	"github.com/tripwell/booking-platform/internal/redisx"
)

// defaultStaleSentinelAfter is the crash-recovery window: an in-flight
// idempotency mark older than this is treated as abandoned and may be taken
// over by a fresh attempt. Liveness policy, not a protocol requirement.
const defaultStaleSentinelAfter = 5 * time.Minute

// Engine is the billing service's payment-intent engine: idempotency-key
// protocol, gateway calls, payment persistence and event emission.
type Engine struct {
	store       Store
	gateway     Gateway
	emitter     EventEmitter
	settlements SettlementQueue
	cache       *redis.Client // optional fast path, never authoritative
	clock       clock.Clock
	mockMode    bool
	staleAfter  time.Duration
}

type EngineOption func(*Engine)

// WithMockMode makes every created intent settle asynchronously via the
// settlement queue, standing in for the gateway's own async confirmation.
func WithMockMode(on bool) EngineOption {
	return func(e *Engine) { e.mockMode = on }
}

// WithResponseCache mirrors stored idempotency responses into Redis.
func WithResponseCache(c *redis.Client) EngineOption {
	return func(e *Engine) { e.cache = c }
}

func WithStaleSentinelAfter(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.staleAfter = d
		}
	}
}

func NewEngine(store Store, gateway Gateway, emitter EventEmitter, settlements SettlementQueue, clk clock.Clock, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		gateway:     gateway,
		emitter:     emitter,
		settlements: settlements,
		clock:       clk,
		staleAfter:  defaultStaleSentinelAfter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type IntentInput struct {
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	BookingID      string
	UserID         string
	TraceID        string
}

type IntentResponse struct {
	PaymentID       string `json:"payment_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
}

// CreatePaymentIntent converts a payment request into exactly one gateway
// intent and one Payment row per idempotency key. Retrying with the same
// key replays the stored response; a concurrent attempt on the same key
// observes the in-flight sentinel and conflicts. The retry loop only spins
// when a stale sentinel was deleted, and the insert that follows cannot
// collide with the row this caller just removed.
func (e *Engine) CreatePaymentIntent(ctx context.Context, in IntentInput) (IntentResponse, error) {
	for attempt := 0; attempt < 2; attempt++ {
		resp, retry, err := e.createIntentOnce(ctx, in)
		if retry {
			continue
		}
		return resp, err
	}
	return IntentResponse{}, ErrIdempotencyInFlight
}

func (e *Engine) createIntentOnce(ctx context.Context, in IntentInput) (IntentResponse, bool, error) {
	now := e.clock.Now()

	if in.IdempotencyKey == "" {
		// No dedup guarantee requested.
		if err := validateIntent(in); err != nil {
			return IntentResponse{}, false, err
		}
	} else {
		var replay *IntentResponse
		var stale bool

		err := e.store.WithTx(ctx, func(txCtx context.Context) error {
			err := e.store.InsertIdempotencyKey(txCtx, in.IdempotencyKey, SentinelInProgress, now)
			if errors.Is(err, ErrDuplicateKey) {
				rec, err := e.store.GetIdempotencyKeyForUpdate(txCtx, in.IdempotencyKey)
				if errors.Is(err, ErrIdempotencyKeyAbsent) {
					// The owning attempt rolled back between our insert and
					// this read; take the whole procedure from the top.
					stale = true
					return nil
				}
				if err != nil {
					return err
				}
				if rec.Response != SentinelInProgress {
					var r IntentResponse
					if err := json.Unmarshal([]byte(rec.Response), &r); err != nil {
						return fmt.Errorf("decode stored response: %w", err)
					}
					replay = &r
					return nil
				}
				if now.Sub(rec.CreatedAt) < e.staleAfter {
					return ErrIdempotencyInFlight
				}
				// Abandoned attempt: free the key and restart.
				stale = true
				return e.store.DeleteIdempotencyKey(txCtx, in.IdempotencyKey)
			}
			if err != nil {
				return err
			}
			// Validation failures roll the sentinel insert back with them.
			return validateIntent(in)
		})
		if err != nil {
			return IntentResponse{}, false, err
		}
		if replay != nil {
			return *replay, false, nil
		}
		if stale {
			return IntentResponse{}, true, nil
		}
	}

	// Gateway call happens strictly before the persisting transaction opens;
	// no row lock is ever held across it.
	intent, err := e.gateway.CreateIntent(ctx, IntentRequest{
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		BookingID:   in.BookingID,
		UserID:      in.UserID,
	})
	if err != nil {
		e.releaseSentinel(ctx, in.IdempotencyKey)
		return IntentResponse{}, false, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	payment := Payment{
		ID:              uuid.NewString(),
		BookingID:       in.BookingID,
		UserID:          in.UserID,
		AmountCents:     in.AmountCents,
		Currency:        in.Currency,
		Status:          StatusPending,
		PaymentIntentID: intent.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	resp := IntentResponse{
		PaymentID:       payment.ID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}

	// Single atomicity boundary: the Payment row and the final idempotency
	// response become durable together.
	err = e.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := e.store.InsertPayment(txCtx, payment); err != nil {
			return err
		}
		if in.IdempotencyKey != "" {
			return e.store.UpdateIdempotencyResponse(txCtx, in.IdempotencyKey, string(mustJSON(resp)))
		}
		return nil
	})
	if err != nil {
		return IntentResponse{}, false, err
	}

	e.mirrorResponse(ctx, in.IdempotencyKey, resp)

	if e.mockMode && e.settlements != nil {
		e.settlements.Enqueue(in.TraceID, payment.ID)
	}
	return resp, false, nil
}

// releaseSentinel frees the idempotency key after a gateway failure so the
// client can retry with the same key immediately instead of waiting out the
// staleness window.
func (e *Engine) releaseSentinel(ctx context.Context, key string) {
	if key == "" {
		return
	}
	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		rec, err := e.store.GetIdempotencyKeyForUpdate(txCtx, key)
		if errors.Is(err, ErrIdempotencyKeyAbsent) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Response != SentinelInProgress {
			return nil
		}
		return e.store.DeleteIdempotencyKey(txCtx, key)
	})
	if err != nil {
		log.Printf("billing: release idempotency key: %v", err)
	}
}

func (e *Engine) mirrorResponse(ctx context.Context, key string, resp IntentResponse) {
	if key == "" || e.cache == nil {
		return
	}
	k := fmt.Sprintf(redisx.KeyIdemPaymentIntent, key)
	if err := e.cache.Set(ctx, k, mustJSON(resp), redisx.TTLIdemPaymentIntent).Err(); err != nil {
		log.Printf("billing: mirror idempotency response: %v", err)
	}
}

func validateIntent(in IntentInput) error {
	if in.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if len(in.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}
	if in.BookingID == "" {
		return fmt.Errorf("%w: booking_id required", ErrValidation)
	}
	if in.UserID == "" {
		return fmt.Errorf("%w: user_id required", ErrValidation)
	}
	if _, err := uuid.Parse(in.UserID); err != nil {
		return fmt.Errorf("%w: user_id must be a UUID", ErrValidation)
	}
	return nil
}

// ConfirmPayment reads the current gateway-side status for an intent and,
// when a payment id is supplied, reconciles the local row with it. It is a
// read-reconciliation: no new side effect happens on the gateway.
func (e *Engine) ConfirmPayment(ctx context.Context, intentID, paymentID, trace string) (Status, error) {
	intent, err := e.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	st := FromGatewayStatus(intent.Status)

	if paymentID != "" {
		if _, _, err := e.applyStatus(ctx, byID(paymentID), st, "", trace); err != nil {
			return "", err
		}
	}
	return st, nil
}

// RefundPayment refunds the underlying intent and marks the payment
// refunded. Deliberately outside the idempotency-key protocol.
func (e *Engine) RefundPayment(ctx context.Context, paymentID, reason, trace string) (Payment, error) {
	p, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}

	if _, err := e.gateway.Refund(ctx, p.PaymentIntentID, reason); err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	p2, _, err := e.applyStatus(ctx, byID(paymentID), StatusRefunded, reason, trace)
	if err != nil {
		return Payment{}, err
	}
	return p2, nil
}

// GetPayment reads through the optional Redis cache. The cache entry is
// dropped whenever a status write lands, so a hit is at worst as stale as
// the TTL after a missed invalidation.
func (e *Engine) GetPayment(ctx context.Context, id string) (Payment, error) {
	if e.cache != nil {
		k := fmt.Sprintf(redisx.KeyPayment, id)
		if raw, err := e.cache.Get(ctx, k).Bytes(); err == nil {
			var p Payment
			if json.Unmarshal(raw, &p) == nil {
				return p, nil
			}
		}
	}

	p, err := e.store.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, err
	}
	if e.cache != nil {
		k := fmt.Sprintf(redisx.KeyPayment, id)
		if err := e.cache.Set(ctx, k, mustJSON(p), redisx.TTLPaymentCache).Err(); err != nil {
			log.Printf("billing: cache payment: %v", err)
		}
	}
	return p, nil
}

func (e *Engine) ListPayments(ctx context.Context, f ListFilter) ([]Payment, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return e.store.ListPayments(ctx, f)
}

// SettlePayment drives the success path for one payment: mark succeeded and
// emit the lifecycle facts. It is idempotent; a payment that already left
// pending-side states is a no-op.
func (e *Engine) SettlePayment(ctx context.Context, paymentID, trace string) error {
	_, _, err := e.applyStatus(ctx, byID(paymentID), StatusSucceeded, "", trace)
	return err
}

// ReconcileIntent applies a gateway-reported status to the payment that owns
// the intent. Shared by the webhook reconciler and the synchronous confirm
// path; both can race safely because the write is a guarded set, not an
// increment.
func (e *Engine) ReconcileIntent(ctx context.Context, intentID string, st Status, reason, trace string) (Payment, bool, error) {
	return e.applyStatus(ctx, byIntent(intentID), st, reason, trace)
}

type paymentRef struct {
	id     string
	intent string
}

func byID(id string) paymentRef         { return paymentRef{id: id} }
func byIntent(intent string) paymentRef { return paymentRef{intent: intent} }

func (e *Engine) applyStatus(ctx context.Context, ref paymentRef, st Status, reason, trace string) (Payment, bool, error) {
	now := e.clock.Now()
	var p Payment
	changed := false

	err := e.store.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		if ref.id != "" {
			p, err = e.store.GetPaymentForUpdate(txCtx, ref.id)
		} else {
			p, err = e.store.GetPaymentByIntentForUpdate(txCtx, ref.intent)
		}
		if err != nil {
			return err
		}
		if !canTransition(p.Status, st) {
			return nil
		}
		if err := e.store.SetPaymentStatus(txCtx, p.ID, st, now); err != nil {
			return err
		}
		p.Status = st
		p.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return Payment{}, false, err
	}

	if changed {
		if e.cache != nil {
			_ = e.cache.Del(ctx, fmt.Sprintf(redisx.KeyPayment, p.ID)).Err()
		}
		if e.emitter != nil {
			switch st {
			case StatusSucceeded:
				e.emitter.PaymentSucceeded(trace, p)
			case StatusFailed:
				e.emitter.PaymentFailed(trace, p, reason)
			}
		}
	}
	return p, changed, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
