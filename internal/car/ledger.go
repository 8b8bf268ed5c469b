// Package car adapts the cars inventory table to the shared reservation
// manager. A rental car is a single unit: availability is a boolean flag
// and a reservation always covers quantity 1.
package car

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tripwell/booking-platform/internal/postgres"
	"github.com/tripwell/booking-platform/internal/reservation"
)

type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Acquire(ctx context.Context, resourceID string, qty int) error {
	if qty != 1 {
		return reservation.ErrInvalidQuantity
	}

	q := postgres.From(ctx, l.pool)

	var available bool
	err := q.QueryRow(ctx, `SELECT available FROM cars WHERE id = $1 FOR UPDATE`, resourceID).
		Scan(&available)
	if err != nil {
		if err == pgx.ErrNoRows || postgres.IsInvalidUUID(err) {
			return reservation.ErrResourceNotFound
		}
		return fmt.Errorf("lock car: %w", err)
	}
	if !available {
		return reservation.ErrInsufficientInventory
	}

	_, err = q.Exec(ctx, `UPDATE cars SET available = FALSE, updated_at = NOW() WHERE id = $1`, resourceID)
	if err != nil {
		return fmt.Errorf("debit car: %w", err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, resourceID string, qty int) error {
	_, err := postgres.From(ctx, l.pool).Exec(ctx,
		`UPDATE cars SET available = TRUE, updated_at = NOW() WHERE id = $1`, resourceID)
	if err != nil {
		return fmt.Errorf("credit car: %w", err)
	}
	return nil
}
