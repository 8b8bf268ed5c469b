package reservation

import (
	"context"
	"maps"
	"time"
)

// fakeLedger is an in-memory resource ledger keyed by resource id.
type fakeLedger struct {
	avail map[string]int
}

func newFakeLedger(avail map[string]int) *fakeLedger {
	return &fakeLedger{avail: maps.Clone(avail)}
}

func (l *fakeLedger) Acquire(ctx context.Context, resourceID string, qty int) error {
	have, ok := l.avail[resourceID]
	if !ok {
		return ErrResourceNotFound
	}
	if have < qty {
		return ErrInsufficientInventory
	}
	l.avail[resourceID] = have - qty
	return nil
}

func (l *fakeLedger) Release(ctx context.Context, resourceID string, qty int) error {
	l.avail[resourceID] += qty
	return nil
}

// fakeStore keeps reservations in a map and emulates transactional rollback
// by snapshotting itself and the linked ledger around WithTx.
type fakeStore struct {
	rows   map[string]Reservation
	ledger *fakeLedger
}

func newFakeStore(ledger *fakeLedger, rows ...Reservation) *fakeStore {
	s := &fakeStore{rows: map[string]Reservation{}, ledger: ledger}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	rowsBefore := maps.Clone(s.rows)
	availBefore := maps.Clone(s.ledger.avail)
	if err := fn(ctx); err != nil {
		s.rows = rowsBefore
		s.ledger.avail = availBefore
		return err
	}
	return nil
}

func (s *fakeStore) Insert(ctx context.Context, res Reservation) error {
	s.rows[res.ID] = res
	return nil
}

func (s *fakeStore) GetForUpdate(ctx context.Context, id string) (Reservation, error) {
	r, ok := s.rows[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return r, nil
}

func (s *fakeStore) SetStatus(ctx context.Context, id string, status Status, expiresAt *time.Time, now time.Time) error {
	r, ok := s.rows[id]
	if !ok {
		return ErrReservationNotFound
	}
	r.Status = status
	r.ExpiresAt = expiresAt
	r.UpdatedAt = now
	s.rows[id] = r
	return nil
}

func (s *fakeStore) ListExpiredForUpdate(ctx context.Context, now time.Time) ([]Reservation, error) {
	var out []Reservation
	for _, r := range s.rows {
		if r.Status == StatusPending && r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}
