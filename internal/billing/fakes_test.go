package billing

import (
	"context"
	"errors"
	"maps"
	"sort"
	"time"
)

// fakeStore keeps payments and idempotency keys in maps and emulates
// transactional rollback by snapshotting around WithTx.
type fakeStore struct {
	payments map[string]Payment
	idem     map[string]IdempotencyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: map[string]Payment{},
		idem:     map[string]IdempotencyRecord{},
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	pBefore := maps.Clone(s.payments)
	iBefore := maps.Clone(s.idem)
	if err := fn(ctx); err != nil {
		s.payments = pBefore
		s.idem = iBefore
		return err
	}
	return nil
}

func (s *fakeStore) InsertPayment(ctx context.Context, p Payment) error {
	s.payments[p.ID] = p
	return nil
}

func (s *fakeStore) GetPayment(ctx context.Context, id string) (Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (s *fakeStore) GetPaymentForUpdate(ctx context.Context, id string) (Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *fakeStore) GetPaymentByIntentForUpdate(ctx context.Context, intentID string) (Payment, error) {
	for _, p := range s.payments {
		if p.PaymentIntentID == intentID {
			return p, nil
		}
	}
	return Payment{}, ErrPaymentNotFound
}

func (s *fakeStore) SetPaymentStatus(ctx context.Context, id string, status Status, now time.Time) error {
	p, ok := s.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = status
	p.UpdatedAt = now
	s.payments[id] = p
	return nil
}

func (s *fakeStore) ListPayments(ctx context.Context, f ListFilter) ([]Payment, error) {
	var out []Payment
	for _, p := range s.payments {
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if f.BookingID != "" && p.BookingID != f.BookingID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *fakeStore) InsertIdempotencyKey(ctx context.Context, key, response string, now time.Time) error {
	if _, ok := s.idem[key]; ok {
		return ErrDuplicateKey
	}
	s.idem[key] = IdempotencyRecord{Key: key, Response: response, CreatedAt: now}
	return nil
}

func (s *fakeStore) GetIdempotencyKeyForUpdate(ctx context.Context, key string) (IdempotencyRecord, error) {
	rec, ok := s.idem[key]
	if !ok {
		return IdempotencyRecord{}, ErrIdempotencyKeyAbsent
	}
	return rec, nil
}

func (s *fakeStore) UpdateIdempotencyResponse(ctx context.Context, key, response string) error {
	rec, ok := s.idem[key]
	if !ok {
		return ErrIdempotencyKeyAbsent
	}
	rec.Response = response
	s.idem[key] = rec
	return nil
}

func (s *fakeStore) DeleteIdempotencyKey(ctx context.Context, key string) error {
	delete(s.idem, key)
	return nil
}

// fakeEmitter records emitted facts.
type fakeEmitter struct {
	succeeded []Payment
	failed    []Payment
}

func (e *fakeEmitter) PaymentSucceeded(trace string, p Payment) { e.succeeded = append(e.succeeded, p) }
func (e *fakeEmitter) PaymentFailed(trace string, p Payment, reason string) {
	e.failed = append(e.failed, p)
}

// fakeQueue records settlement enqueues.
type fakeQueue struct {
	enqueued []string
}

func (q *fakeQueue) Enqueue(trace, paymentID string) { q.enqueued = append(q.enqueued, paymentID) }

// failingGateway rejects every call.
type failingGateway struct{}

func (failingGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	return Intent{}, errors.New("gateway unavailable")
}

func (failingGateway) GetIntent(ctx context.Context, intentID string) (Intent, error) {
	return Intent{}, errors.New("gateway unavailable")
}

func (failingGateway) Refund(ctx context.Context, intentID, reason string) (Refund, error) {
	return Refund{}, errors.New("gateway unavailable")
}
