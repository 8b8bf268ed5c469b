package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tripwell/booking-platform/internal/clock"
)

const defaultHoldTTL = 15 * time.Minute

// Manager implements the reservation state machine shared by the inventory
// services. All correctness comes from the store's transaction and the row
// locks taken inside it, not from in-process synchronization.
type Manager struct {
	store   Store
	ledger  Ledger
	clock   clock.Clock
	holdTTL time.Duration
}

type ManagerOption func(*Manager)

// WithHoldTTL overrides the default 15 minute hold.
func WithHoldTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.holdTTL = d
		}
	}
}

func NewManager(store Store, ledger Ledger, clk clock.Clock, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		ledger:  ledger,
		clock:   clk,
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create debits the resource and inserts a pending reservation in one
// transaction. Concurrent creates against the same resource serialize on
// the ledger's row lock, so availability can never go negative.
func (m *Manager) Create(ctx context.Context, resourceID, bookingID string, qty int) (Reservation, error) {
	if qty < 1 {
		return Reservation{}, ErrInvalidQuantity
	}
	if bookingID == "" {
		return Reservation{}, ErrMissingBookingRef
	}

	now := m.clock.Now()
	expires := now.Add(m.holdTTL)
	res := Reservation{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		BookingID:  bookingID,
		Quantity:   qty,
		Status:     StatusPending,
		ExpiresAt:  &expires,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		if err := m.ledger.Acquire(txCtx, resourceID, qty); err != nil {
			return err
		}
		return m.store.Insert(txCtx, res)
	})
	if err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// Confirm moves a pending reservation to confirmed and clears its expiry.
// Anything that is not currently pending (already confirmed, expired,
// cancelled, or never existed) reports ErrReservationNotFound; callers are
// not meant to distinguish those cases. The ledger is untouched, inventory
// was already debited at Create time.
func (m *Manager) Confirm(ctx context.Context, id string) (Reservation, error) {
	now := m.clock.Now()
	var out Reservation

	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		res, err := m.store.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if res.Status != StatusPending {
			return ErrReservationNotFound
		}
		if err := m.store.SetStatus(txCtx, id, StatusConfirmed, nil, now); err != nil {
			return err
		}
		res.Status = StatusConfirmed
		res.ExpiresAt = nil
		res.UpdatedAt = now
		out = res
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return out, nil
}

// Cancel releases a pending hold back to the ledger. It is the saga's
// compensation step and must be safe to replay: cancelling a missing or
// already-terminal reservation commits a no-op and reports success, and
// inventory is restored exactly once.
func (m *Manager) Cancel(ctx context.Context, id string) (Reservation, error) {
	now := m.clock.Now()
	var out Reservation

	err := m.store.WithTx(ctx, func(txCtx context.Context) error {
		res, err := m.store.GetForUpdate(txCtx, id)
		if errors.Is(err, ErrReservationNotFound) {
			out = Reservation{ID: id, Status: StatusCancelled}
			return nil
		}
		if err != nil {
			return err
		}
		if res.Status != StatusPending {
			out = res
			return nil
		}
		if err := m.store.SetStatus(txCtx, id, StatusCancelled, nil, now); err != nil {
			return err
		}
		if err := m.ledger.Release(txCtx, res.ResourceID, res.Quantity); err != nil {
			return err
		}
		res.Status = StatusCancelled
		res.ExpiresAt = nil
		res.UpdatedAt = now
		out = res
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return out, nil
}
