package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/tripwell/booking-platform/internal/redisx"
)

// WebhookEvent is the gateway's asynchronous notification shape.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"` // payment intent / charge intent id
			Status string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

var ErrBadSignature = errors.New("invalid webhook signature")

// Reconciler is the webhook entry point: it authenticates gateway
// notifications and reconciles local payment state with them. It drives the
// same status + emission logic as the synchronous path, so the two can
// arrive in any order.
type Reconciler struct {
	Engine *Engine
	Secret string
	Redis  *redis.Client // optional event-id dedup, best effort
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body against the
// shared secret.
func (r *Reconciler) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(r.Secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

// Sign computes the signature VerifySignature expects. Used by tests and by
// the gateway simulator.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Handle processes one authenticated notification. Errors are internal:
// the HTTP layer still acknowledges receipt so the gateway does not retry
// forever on our transient failures.
func (r *Reconciler) Handle(ctx context.Context, body []byte, trace string) error {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode webhook: %w", err)
	}

	if r.Redis != nil && ev.ID != "" {
		dkey := fmt.Sprintf(redisx.KeyDedup, "webhook", ev.ID)
		if seen, _ := redisx.Exists(ctx, r.Redis, dkey); seen {
			return nil
		}
		_ = r.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	intentID := ev.Data.Object.ID
	if intentID == "" {
		return fmt.Errorf("webhook %s: missing object id", ev.ID)
	}

	var st Status
	reason := ""
	switch ev.Type {
	case "payment_intent.succeeded":
		st = StatusSucceeded
	case "payment_intent.payment_failed":
		st = StatusFailed
		reason = "gateway reported failure"
	case "charge.refunded":
		st = StatusRefunded
	default:
		log.Printf("billing: ignoring webhook type %s", ev.Type)
		return nil
	}

	_, _, err := r.Engine.ReconcileIntent(ctx, intentID, st, reason, trace)
	return err
}
