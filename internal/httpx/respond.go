package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details any    `json:"details,omitempty"`
}

// writeError maps an error kind to its status. Internal errors are not echoed.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error()}
	if code == http.StatusInternalServerError {
		body.Error = "internal error"
	}

	var ve apperr.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if ise, ok := inventory.AsInsufficient(err); ok {
		body.Details = ise
	}
	var ite *orders.InvalidTransitionError
	if errors.As(err, &ite) {
		body.Details = map[string]string{"from": ite.From.String(), "to": ite.To.String()}
	}
	var pce *orders.PriceChangedError
	if errors.As(err, &pce) {
		body.Details = pce
	}
	writeJSON(w, code, body)
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("body", "invalid json")
	}
	return nil
}
