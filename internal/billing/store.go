package billing

import (
	"context"
	"errors"
	"time"
)

// SentinelInProgress marks an idempotency row whose request is still being
// processed. It is replaced exactly once with the final response JSON.
const SentinelInProgress = "__IN_PROGRESS__"

// IdempotencyRecord is one row of the idempotency ledger: at most one per
// client-supplied key.
type IdempotencyRecord struct {
	Key       string
	Response  string // SentinelInProgress while in flight, else response JSON
	CreatedAt time.Time
}

var (
	ErrValidation           = errors.New("invalid payment request")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrIdempotencyInFlight  = errors.New("idempotency key still processing")
	ErrDuplicateKey         = errors.New("idempotency key exists")
	ErrIdempotencyKeyAbsent = errors.New("idempotency key not found")
	ErrGateway              = errors.New("payment gateway error")
)

type ListFilter struct {
	UserID    string
	BookingID string
	Status    Status
	Limit     int
	Offset    int
}

// Store persists payments and the idempotency ledger in one transactional
// datastore, so both can be written inside a single WithTx boundary.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, id string) (Payment, error)
	GetPaymentByIntentForUpdate(ctx context.Context, intentID string) (Payment, error)
	SetPaymentStatus(ctx context.Context, id string, status Status, now time.Time) error
	ListPayments(ctx context.Context, f ListFilter) ([]Payment, error)

	// InsertIdempotencyKey reports ErrDuplicateKey when the key exists. The
	// conflict must not abort the surrounding transaction (the caller keeps
	// issuing statements in it).
	InsertIdempotencyKey(ctx context.Context, key, response string, now time.Time) error
	GetIdempotencyKeyForUpdate(ctx context.Context, key string) (IdempotencyRecord, error)
	UpdateIdempotencyResponse(ctx context.Context, key, response string) error
	DeleteIdempotencyKey(ctx context.Context, key string) error
}
