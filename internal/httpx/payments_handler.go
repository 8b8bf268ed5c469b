package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tripwell/booking-platform/internal/billing"
)

// PaymentService is the billing engine surface the HTTP layer consumes.
type PaymentService interface {
	CreatePaymentIntent(ctx context.Context, in billing.IntentInput) (billing.IntentResponse, error)
	ConfirmPayment(ctx context.Context, intentID, paymentID, trace string) (billing.Status, error)
	RefundPayment(ctx context.Context, paymentID, reason, trace string) (billing.Payment, error)
	GetPayment(ctx context.Context, id string) (billing.Payment, error)
	ListPayments(ctx context.Context, f billing.ListFilter) ([]billing.Payment, error)
}

// WebhookReconciler authenticates and applies gateway notifications.
type WebhookReconciler interface {
	VerifySignature(body []byte, signature string) bool
	Handle(ctx context.Context, body []byte, trace string) error
}

type PaymentsHandler struct {
	Service    PaymentService
	Reconciler WebhookReconciler
}

type createIntentReq struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	BookingID   string `json:"booking_id"`
	UserID      string `json:"user_id"`
}

type confirmPaymentReq struct {
	PaymentIntentID string `json:"payment_intent_id"`
	PaymentID       string `json:"payment_id,omitempty"`
}

type refundReq struct {
	Reason string `json:"reason"`
}

func (h *PaymentsHandler) Register(r *chi.Mux) {
	r.Post("/payments/intent", h.createIntent)
	r.Post("/payments/confirm", h.confirm)
	r.Post("/payments/{id}/refund", h.refund)
	r.Get("/payments/{id}", h.get)
	r.Get("/payments", h.list)
	r.Post("/webhooks/payments", h.webhook)
}

func (h *PaymentsHandler) createIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp, err := h.Service.CreatePaymentIntent(ctx, billing.IntentInput{
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		BookingID:      req.BookingID,
		UserID:         req.UserID,
		TraceID:        middleware.GetReqID(r.Context()),
	})
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *PaymentsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}
	if req.PaymentIntentID == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "payment_intent_id required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	st, err := h.Service.ConfirmPayment(ctx, req.PaymentIntentID, req.PaymentID, middleware.GetReqID(r.Context()))
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(st)})
}

func (h *PaymentsHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	p, err := h.Service.RefundPayment(ctx, chi.URLParam(r, "id"), req.Reason, middleware.GetReqID(r.Context()))
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Service.GetPayment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PaymentsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	ps, err := h.Service.ListPayments(ctx, billing.ListFilter{
		UserID:    q.Get("user_id"),
		BookingID: q.Get("booking_id"),
		Status:    billing.Status(q.Get("status")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": ps})
}

// webhook always acknowledges authenticated notifications, even when the
// internal processing fails: the gateway redelivers at-least-once and a
// permanent 5xx would make it retry forever.
func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable body")
		return
	}
	if !h.Reconciler.VerifySignature(body, r.Header.Get("X-Webhook-Signature")) {
		writeError(w, r, http.StatusUnauthorized, "BAD_SIGNATURE", "invalid webhook signature")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Reconciler.Handle(ctx, body, middleware.GetReqID(r.Context())); err != nil {
		log.Printf("webhook processing: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *PaymentsHandler) writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrValidation):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, billing.ErrPaymentNotFound):
		writeError(w, r, http.StatusNotFound, "PAYMENT_NOT_FOUND", err.Error())
	case errors.Is(err, billing.ErrIdempotencyInFlight):
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "request with this idempotency key is still processing")
	case errors.Is(err, billing.ErrGateway):
		writeError(w, r, http.StatusBadGateway, "GATEWAY_ERROR", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
