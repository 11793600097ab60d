package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/diewo77/devispro/httpx"
	"github.com/diewo77/devispro/internal/services"
)

// MaxWebhookBytes bounds webhook payloads, as Stripe recommends.
const MaxWebhookBytes = 64 << 10

type BillingHandler struct {
	svc    *services.BillingService
	logger *slog.Logger
}

func NewBillingHandler(svc *services.BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{svc: svc, logger: logger}
}

// Checkout handles POST /api/create-checkout-session.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in services.CheckoutInput
	if !decode(w, r, &in) {
		return
	}
	sess, err := h.svc.CreateCheckoutSession(r.Context(), uid, in)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	httpx.OK(w, map[string]any{"url": sess.URL, "sessionId": sess.ID, "mode": sess.Mode})
}

// Webhook handles POST /api/stripe-webhook. The body must stay raw for the
// signature check.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Fail(w, r, http.StatusRequestEntityTooLarge, "invalid_json")
			return
		}
		Fail(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	h.logger.Info("webhook processed", "event_id", res.EventID, "type", res.Type, "status", res.Status)
	httpx.JSON(w, http.StatusOK, map[string]any{"received": true, "status": res.Status})
}
