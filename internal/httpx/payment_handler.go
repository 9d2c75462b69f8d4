package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/reconcile"
)

// PaymentHandler serves the buyer's payment page. Every route is limited to
// the order's owner and admins.
type PaymentHandler struct {
	Orders  *orders.Manager
	Gateway *reconcile.Gateway
}

func (h *PaymentHandler) Register(r chi.Router) {
	r.Get("/payment/qr/{id}", h.qr)
	r.Get("/payment/check/{id}", h.check)
	r.Post("/payment/verify-manual/{id}", h.verifyManual)
	r.Post("/payment/cancel/{id}", h.cancel)
}

// owned resolves the caller and order id and checks the caller may act on
// the order. It writes the error response itself.
func (h *PaymentHandler) owned(w http.ResponseWriter, r *http.Request) (int64, bool) {
	p, id, err := callerAndID(r)
	if err == nil {
		_, err = h.Orders.GetFor(r.Context(), p, id)
	}
	if err != nil {
		writeError(w, err)
		return 0, false
	}
	return id, true
}

func (h *PaymentHandler) qr(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owned(w, r)
	if !ok {
		return
	}
	req, err := h.Gateway.PaymentRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// check never reports a provider outage as an error; the gateway degrades
// it to a pending result.
func (h *PaymentHandler) check(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owned(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Gateway.Poll(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) verifyManual(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owned(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Gateway.ConfirmManually(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.owned(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Gateway.Abandon(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "payment cancelled",
		"orderId":       o.ID,
		"status":        o.Status,
		"paymentStatus": o.PaymentStatus,
	})
}
