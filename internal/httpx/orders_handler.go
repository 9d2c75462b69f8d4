package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/statuscache"
)

type OrdersHandler struct {
	Manager *orders.Manager
	Status  *statuscache.Store // optional read-through cache
	Log     *zap.Logger
}

type CreateOrderReq struct {
	Items    []orders.CartItem   `json:"items"`
	Shipping orders.ShippingInfo `json:"shipping"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listMine)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Put("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)

	r.Get("/admin/orders", h.listAll)
	r.Get("/admin/orders/statistics", h.statistics)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req CreateOrderReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Manager.CreateFromCart(ctx, p, orders.Cart{Items: req.Items}, req.Shipping)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Manager.ListForUser(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	p, id, err := callerAndID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Manager.GetFor(ctx, p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	p, id, err := callerAndID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache; snapshots written before user_id existed fall through
	if h.Status != nil {
		snap, ok, err := h.Status.Get(ctx, id)
		if err != nil {
			h.Log.Warn("status cache read failed", zap.Int64("order_id", id), zap.Error(err))
		} else if ok && snap.UserID != 0 {
			if err := orders.AuthorizeOwner(p, snap.UserID); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	// 2) fallback to the store
	o, err := h.Manager.GetFor(ctx, p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusOK, orders.SnapshotOf(o))
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	p, id, err := callerAndID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := orders.RequireAdmin(p); err != nil {
		writeError(w, err)
		return
	}
	var req UpdateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	target, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Manager.UpdateStatus(ctx, id, target)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	p, id, err := callerAndID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Manager.GetFor(ctx, p, id); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Manager.Cancel(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := listFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Manager.ListOrders(ctx, p, f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *OrdersHandler) statistics(w http.ResponseWriter, r *http.Request) {
	p, err := principalFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Manager.Statistics(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *OrdersHandler) cache(ctx context.Context, o *orders.Order) {
	if h.Status == nil {
		return
	}
	if _, err := h.Status.Apply(ctx, orders.SnapshotOf(o)); err != nil {
		h.Log.Warn("status cache write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

// listFilter reads ?status=&limit=&offset=. Absent values use the defaults.
func listFilter(r *http.Request) (orders.ListFilter, error) {
	var f orders.ListFilter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := orders.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = intQuery(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intQuery(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intQuery(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Invalid(name, "must be a non-negative integer")
	}
	return n, nil
}
