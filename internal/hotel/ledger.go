// Package hotel adapts the room_types inventory table to the shared
// reservation manager. Availability is an integer room counter.
package hotel

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

// Acquire locks the room type row, checks the counter and debits it.
// Runs inside the reservation store's transaction.
func (l *Ledger) Acquire(ctx context.Context, resourceID string, qty int) error {
	q := postgres.From(ctx, l.pool)

	var available int
	err := q.QueryRow(ctx, `SELECT available_rooms FROM room_types WHERE id = $1 FOR UPDATE`, resourceID).
		Scan(&available)
	if err != nil {
		if err == pgx.ErrNoRows || postgres.IsInvalidUUID(err) {
			return reservation.ErrResourceNotFound
		}
		return fmt.Errorf("lock room type: %w", err)
	}
	if available < qty {
		return reservation.ErrInsufficientInventory
	}

	_, err = q.Exec(ctx, `UPDATE room_types SET available_rooms = available_rooms - $2, updated_at = NOW() WHERE id = $1`,
		resourceID, qty)
	if err != nil {
		return fmt.Errorf("debit room type: %w", err)
	}
	return nil
}

func (l *Ledger) Release(ctx context.Context, resourceID string, qty int) error {
	_, err := postgres.From(ctx, l.pool).Exec(ctx,
		`UPDATE room_types SET available_rooms = available_rooms + $2, updated_at = NOW() WHERE id = $1`,
		resourceID, qty)
	if err != nil {
		return fmt.Errorf("credit room type: %w", err)
	}
	return nil
}
