package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tripwell/booking-platform/internal/reservation"
)

// ReservationService is what the handler needs from the reservation
// manager; both inventory services satisfy it with the shared Manager.
type ReservationService interface {
	Create(ctx context.Context, resourceID, bookingID string, qty int) (reservation.Reservation, error)
	Confirm(ctx context.Context, id string) (reservation.Reservation, error)
	Cancel(ctx context.Context, id string) (reservation.Reservation, error)
}

type ReservationsHandler struct {
	Service ReservationService
}

type createReservationReq struct {
	ResourceID string `json:"resource_id"`
	BookingID  string `json:"booking_id"`
	Quantity   int    `json:"quantity"`
}

type reservationResp struct {
	ReservationID string     `json:"reservation_id"`
	Status        string     `json:"status"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func (h *ReservationsHandler) Register(r *chi.Mux) {
	r.Post("/reservations", h.create)
	r.Post("/reservations/{id}/confirm", h.confirm)
	r.Post("/reservations/{id}/cancel", h.cancel)
}

func (h *ReservationsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	if req.ResourceID == "" || req.BookingID == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "resource_id and booking_id required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.Create(ctx, req.ResourceID, req.BookingID, req.Quantity)
	if err != nil {
		h.writeReservationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservationResp{
		ReservationID: res.ID,
		Status:        string(res.Status),
		ExpiresAt:     res.ExpiresAt,
	})
}

func (h *ReservationsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.Confirm(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeReservationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResp{ReservationID: res.ID, Status: string(res.Status)})
}

func (h *ReservationsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.Cancel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeReservationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResp{ReservationID: res.ID, Status: string(res.Status)})
}

func (h *ReservationsHandler) writeReservationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reservation.ErrResourceNotFound):
		writeError(w, r, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error())
	case errors.Is(err, reservation.ErrReservationNotFound):
		writeError(w, r, http.StatusNotFound, "RESERVATION_NOT_FOUND", err.Error())
	case errors.Is(err, reservation.ErrInsufficientInventory):
		writeError(w, r, http.StatusConflict, "INSUFFICIENT_INVENTORY", err.Error())
	case errors.Is(err, reservation.ErrInvalidQuantity), errors.Is(err, reservation.ErrMissingBookingRef):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
