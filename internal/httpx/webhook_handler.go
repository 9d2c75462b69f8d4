package httpx

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
	"github.com/ariefcatur/go-bookstore-orders/internal/reconcile"
	"github.com/ariefcatur/go-bookstore-orders/internal/sepay"
)

// WebhookHandler receives SePay pushes. Business-rule rejections are answered
// with 200 so the provider does not retry them.
type WebhookHandler struct {
	Gateway *reconcile.Gateway
	APIKey  string // empty disables the check
	Log     *zap.Logger
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/api/webhooks/sepay", h.receive)
	r.Get("/api/webhooks/sepay/health", h.health)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, reconcile.WebhookOutcome{Message: "invalid api key"})
		return
	}

	var p sepay.WebhookPayload
	if err := decodeJSON(w, r, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, reconcile.WebhookOutcome{Message: "invalid payload"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Gateway.HandleWebhook(ctx, reconcile.WebhookNotice{
		ProviderID:      string(p.ID),
		Code:            string(p.Code),
		Content:         strings.TrimSpace(p.Memo()),
		Amount:          p.Amount(),
		AccountNumber:   p.Account(),
		Gateway:         p.Gateway,
		Reference:       p.Reference(),
		TransactionDate: sepay.ParseDate(p.Date(), nil),
	})
	switch {
	case apperr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, reconcile.WebhookOutcome{Message: err.Error()})
	case err != nil:
		h.Log.Error("webhook processing failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, reconcile.WebhookOutcome{Message: "internal error"})
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.APIKey == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Apikey ")
	return ok && subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(h.APIKey)) == 1
}

func (h *WebhookHandler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "sepay-webhook",
		"timestamp": time.Now().UTC(),
	})
}
