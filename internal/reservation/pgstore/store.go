// Package pgstore is the Postgres implementation of the reservation store,
// shared by the hotel and car services (both carry an identical
// reservations table in their own database).
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tripwell/booking-platform/internal/postgres"
	"github.com/tripwell/booking-platform/internal/reservation"
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

func (s *Store) Insert(ctx context.Context, res reservation.Reservation) error {
	const stmt = `
INSERT INTO reservations (id, resource_id, booking_id, quantity, status, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := postgres.From(ctx, s.pool).Exec(ctx, stmt,
		res.ID, res.ResourceID, res.BookingID, res.Quantity, res.Status, res.ExpiresAt, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (s *Store) GetForUpdate(ctx context.Context, id string) (reservation.Reservation, error) {
	const query = `
SELECT id, resource_id, booking_id, quantity, status, expires_at, created_at, updated_at
FROM reservations WHERE id = $1 FOR UPDATE`

	var r reservation.Reservation
	err := postgres.From(ctx, s.pool).QueryRow(ctx, query, id).
		Scan(&r.ID, &r.ResourceID, &r.BookingID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows || postgres.IsInvalidUUID(err) {
			return reservation.Reservation{}, reservation.ErrReservationNotFound
		}
		return reservation.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status reservation.Status, expiresAt *time.Time, now time.Time) error {
	const stmt = `UPDATE reservations SET status = $2, expires_at = $3, updated_at = $4 WHERE id = $1`

	ct, err := postgres.From(ctx, s.pool).Exec(ctx, stmt, id, status, expiresAt, now)
	if err != nil {
		return fmt.Errorf("set reservation status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return reservation.ErrReservationNotFound
	}
	return nil
}

func (s *Store) ListExpiredForUpdate(ctx context.Context, now time.Time) ([]reservation.Reservation, error) {
	const query = `
SELECT id, resource_id, booking_id, quantity, status, expires_at, created_at, updated_at
FROM reservations
WHERE status = 'pending' AND expires_at <= $1
FOR UPDATE`

	rows, err := postgres.From(ctx, s.pool).Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		var r reservation.Reservation
		if err := rows.Scan(&r.ID, &r.ResourceID, &r.BookingID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
