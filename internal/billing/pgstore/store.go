// Package pgstore is the Postgres implementation of the billing store:
// payments plus the idempotency-key ledger, sharing one pool so both can be
// written inside a single transaction.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tripwell/booking-platform/internal/billing"
	"github.com/tripwell/booking-platform/internal/postgres"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, s.pool, fn)
}

const paymentColumns = `id, booking_id, user_id, amount_cents, currency, status, payment_intent_id, created_at, updated_at`

func (s *Store) InsertPayment(ctx context.Context, p billing.Payment) error {
	const stmt = `
INSERT INTO payments (id, booking_id, user_id, amount_cents, currency, status, payment_intent_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := postgres.From(ctx, s.pool).Exec(ctx, stmt,
		p.ID, p.BookingID, p.UserID, p.AmountCents, p.Currency, p.Status, p.PaymentIntentID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (billing.Payment, error) {
	return s.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (s *Store) GetPaymentForUpdate(ctx context.Context, id string) (billing.Payment, error) {
	return s.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id)
}

func (s *Store) GetPaymentByIntentForUpdate(ctx context.Context, intentID string) (billing.Payment, error) {
	return s.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id = $1 FOR UPDATE`, intentID)
}

func (s *Store) getPayment(ctx context.Context, query, arg string) (billing.Payment, error) {
	var p billing.Payment
	err := postgres.From(ctx, s.pool).QueryRow(ctx, query, arg).
		Scan(&p.ID, &p.BookingID, &p.UserID, &p.AmountCents, &p.Currency, &p.Status, &p.PaymentIntentID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows || postgres.IsInvalidUUID(err) {
			return billing.Payment{}, billing.ErrPaymentNotFound
		}
		return billing.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *Store) SetPaymentStatus(ctx context.Context, id string, status billing.Status, now time.Time) error {
	ct, err := postgres.From(ctx, s.pool).Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1`, id, status, now)
	if err != nil {
		return fmt.Errorf("set payment status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return billing.ErrPaymentNotFound
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, f billing.ListFilter) ([]billing.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	n := 0
	next := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.UserID != "" {
		query += ` AND user_id = ` + next(f.UserID)
	}
	if f.BookingID != "" {
		query += ` AND booking_id = ` + next(f.BookingID)
	}
	if f.Status != "" {
		query += ` AND status = ` + next(f.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + next(f.Limit) + ` OFFSET ` + next(f.Offset)

	rows, err := postgres.From(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []billing.Payment
	for rows.Next() {
		var p billing.Payment
		if err := rows.Scan(&p.ID, &p.BookingID, &p.UserID, &p.AmountCents, &p.Currency, &p.Status, &p.PaymentIntentID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertIdempotencyKey uses ON CONFLICT DO NOTHING so a duplicate does not
// abort the caller's open transaction; the conflict is reported as
// ErrDuplicateKey via the affected-row count.
func (s *Store) InsertIdempotencyKey(ctx context.Context, key, response string, now time.Time) error {
	const stmt = `
INSERT INTO idempotency_keys (key, response, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`

	ct, err := postgres.From(ctx, s.pool).Exec(ctx, stmt, key, response, now)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return billing.ErrDuplicateKey
	}
	return nil
}

func (s *Store) GetIdempotencyKeyForUpdate(ctx context.Context, key string) (billing.IdempotencyRecord, error) {
	const query = `SELECT key, response, created_at FROM idempotency_keys WHERE key = $1 FOR UPDATE`

	var rec billing.IdempotencyRecord
	err := postgres.From(ctx, s.pool).QueryRow(ctx, query, key).Scan(&rec.Key, &rec.Response, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return billing.IdempotencyRecord{}, billing.ErrIdempotencyKeyAbsent
		}
		return billing.IdempotencyRecord{}, fmt.Errorf("get idempotency key: %w", err)
	}
	return rec, nil
}

func (s *Store) UpdateIdempotencyResponse(ctx context.Context, key, response string) error {
	ct, err := postgres.From(ctx, s.pool).Exec(ctx,
		`UPDATE idempotency_keys SET response = $2 WHERE key = $1`, key, response)
	if err != nil {
		return fmt.Errorf("update idempotency response: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return billing.ErrIdempotencyKeyAbsent
	}
	return nil
}

func (s *Store) DeleteIdempotencyKey(ctx context.Context, key string) error {
	_, err := postgres.From(ctx, s.pool).Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete idempotency key: %w", err)
	}
	return nil
}
