package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tripwell/booking-platform/internal/reservation"
)

type stubReservations struct {
	create  func(resourceID, bookingID string, qty int) (reservation.Reservation, error)
	confirm func(id string) (reservation.Reservation, error)
	cancel  func(id string) (reservation.Reservation, error)
}

func (s *stubReservations) Create(ctx context.Context, resourceID, bookingID string, qty int) (reservation.Reservation, error) {
	return s.create(resourceID, bookingID, qty)
}

func (s *stubReservations) Confirm(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.confirm(id)
}

func (s *stubReservations) Cancel(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.cancel(id)
}

func newReservationsServer(svc ReservationService) *httptest.Server {
	r := NewRouter()
	(&ReservationsHandler{Service: svc}).Register(r)
	return httptest.NewServer(r)
}

func TestReservationsHandler_Create(t *testing.T) {
	expires := time.Date(2025, 3, 1, 12, 15, 0, 0, time.UTC)

	t.Run("creates a hold", func(t *testing.T) {
		var gotQty int
		svc := &stubReservations{
			create: func(resourceID, bookingID string, qty int) (reservation.Reservation, error) {
				gotQty = qty
				return reservation.Reservation{ID: "r1", ResourceID: resourceID, BookingID: bookingID, Quantity: qty, Status: reservation.StatusPending, ExpiresAt: &expires}, nil
			},
		}
		srv := newReservationsServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/reservations", "application/json",
			strings.NewReader(`{"resource_id":"room-1","booking_id":"b1","quantity":2}`))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		if gotQty != 2 {
			t.Fatalf("expected quantity 2 passed through, got %d", gotQty)
		}
		var body struct {
			ReservationID string `json:"reservation_id"`
			Status        string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.ReservationID != "r1" || body.Status != string(reservation.StatusPending) {
			t.Fatalf("unexpected body: %+v", body)
		}
	})

	t.Run("quantity defaults to one", func(t *testing.T) {
		var gotQty int
		svc := &stubReservations{
			create: func(resourceID, bookingID string, qty int) (reservation.Reservation, error) {
				gotQty = qty
				return reservation.Reservation{ID: "r1", Status: reservation.StatusPending}, nil
			},
		}
		srv := newReservationsServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/reservations", "application/json",
			strings.NewReader(`{"resource_id":"room-1","booking_id":"b1"}`))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if gotQty != 1 {
			t.Fatalf("expected default quantity 1, got %d", gotQty)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		srv := newReservationsServer(&stubReservations{})
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/reservations", "application/json",
			strings.NewReader(`{"resource_id":"room-1"}`))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{reservation.ErrResourceNotFound, http.StatusNotFound},
			{reservation.ErrInsufficientInventory, http.StatusConflict},
			{reservation.ErrInvalidQuantity, http.StatusBadRequest},
			{context.DeadlineExceeded, http.StatusInternalServerError},
		}
		for _, tc := range cases {
			svc := &stubReservations{
				create: func(string, string, int) (reservation.Reservation, error) {
					return reservation.Reservation{}, tc.err
				},
			}
			srv := newReservationsServer(svc)
			resp, err := http.Post(srv.URL+"/reservations", "application/json",
				strings.NewReader(`{"resource_id":"room-1","booking_id":"b1"}`))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			resp.Body.Close()
			srv.Close()
			if resp.StatusCode != tc.code {
				t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, resp.StatusCode)
			}
		}
	})
}

func TestReservationsHandler_ConfirmCancel(t *testing.T) {
	t.Run("confirm routes the path id", func(t *testing.T) {
		svc := &stubReservations{
			confirm: func(id string) (reservation.Reservation, error) {
				return reservation.Reservation{ID: id, Status: reservation.StatusConfirmed}, nil
			},
		}
		srv := newReservationsServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/reservations/r42/confirm", "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body struct {
			ReservationID string `json:"reservation_id"`
			Status        string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.ReservationID != "r42" || body.Status != string(reservation.StatusConfirmed) {
			t.Fatalf("unexpected body: %+v", body)
		}
	})

	t.Run("confirm of a missing hold is 404", func(t *testing.T) {
		svc := &stubReservations{
			confirm: func(id string) (reservation.Reservation, error) {
				return reservation.Reservation{}, reservation.ErrReservationNotFound
			},
		}
		srv := newReservationsServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/reservations/nope/confirm", "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("cancel always succeeds", func(t *testing.T) {
		svc := &stubReservations{
			cancel: func(id string) (reservation.Reservation, error) {
				return reservation.Reservation{ID: id, Status: reservation.StatusCancelled}, nil
			},
		}
		srv := newReservationsServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/reservations/ghost/cancel", "application/json", nil)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})
}
