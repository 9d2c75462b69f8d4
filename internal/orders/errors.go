package orders

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
)

var (
	ErrOrderNotFound     = fmt.Errorf("order not found: %w", apperr.ErrNotFound)
	ErrInvalidTransition = fmt.Errorf("invalid status transition: %w", apperr.ErrConflict)
	ErrAmountMismatch    = fmt.Errorf("amount below order total: %w", apperr.ErrConflict)
	ErrEmptyCart         = apperr.Invalid("cart", "cart is empty")
	ErrPriceChanged      = fmt.Errorf("catalog price changed: %w", apperr.ErrConflict)
	ErrNoPrincipal       = fmt.Errorf("caller identity missing: %w", apperr.ErrUnauthenticated)
	ErrNotOwner          = fmt.Errorf("order belongs to another user: %w", apperr.ErrForbidden)
	ErrAdminOnly         = fmt.Errorf("admin role required: %w", apperr.ErrForbidden)
)

// InvalidTransitionError is returned when the transition table rejects a move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// PriceChangedError rejects a cart line quoted at a price the catalog no
// longer has.
type PriceChangedError struct {
	BookID  int64 `json:"book_id"`
	Quoted  int64 `json:"quoted"`
	Current int64 `json:"current"`
}

func (e *PriceChangedError) Error() string {
	return fmt.Sprintf("price of book %d changed: quoted %d, current %d", e.BookID, e.Quoted, e.Current)
}

func (e *PriceChangedError) Unwrap() error { return ErrPriceChanged }

type AmountMismatchError struct {
	Required int64
	Observed int64
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch: required %d, observed %d", e.Required, e.Observed)
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

func IsAmountMismatch(err error) bool { return errors.Is(err, ErrAmountMismatch) }
