package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

type BooksHandler struct {
	Ledger inventory.Ledger
}

type RestockReq struct {
	Quantity int `json:"quantity"`
}

func (h *BooksHandler) Register(r chi.Router) {
	r.Get("/books/{id}/stock", h.getStock)
	r.Post("/books/{id}/restock", h.restock)
}

func (h *BooksHandler) getStock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, err := h.Ledger.Get(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BooksHandler) restock(w http.ResponseWriter, r *http.Request) {
	p, id, err := callerAndID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := orders.RequireAdmin(p); err != nil {
		writeError(w, err)
		return
	}
	var req RestockReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	b, err := h.Ledger.Release(ctx, id, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
