package reservation

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Reservation is a time-bounded hold on a single resource. Inventory is
// debited when the row is created and credited back exactly once when the
// row leaves pending without being confirmed.
type Reservation struct {
	ID         string
	ResourceID string
	BookingID  string
	Quantity   int
	Status     Status
	ExpiresAt  *time.Time // set only while pending
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	ErrResourceNotFound      = errors.New("resource not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrMissingBookingRef     = errors.New("booking reference required")
)

// Store persists reservation rows. Mutating calls are expected to run inside
// the transaction opened by WithTx (the implementation carries it on ctx).
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Insert(ctx context.Context, res Reservation) error
	GetForUpdate(ctx context.Context, id string) (Reservation, error)
	SetStatus(ctx context.Context, id string, status Status, expiresAt *time.Time, now time.Time) error
	ListExpiredForUpdate(ctx context.Context, now time.Time) ([]Reservation, error)
}

// Ledger adapts the manager to one inventory table. Acquire locks the
// resource row, checks availability and debits it; Release credits it back.
// Both run inside the store's context transaction.
type Ledger interface {
	Acquire(ctx context.Context, resourceID string, qty int) error
	Release(ctx context.Context, resourceID string, qty int) error
}
