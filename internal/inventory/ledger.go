// Package inventory is the stock ledger: the only component allowed to mutate
// a book's available quantity.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
)

var (
	ErrBookNotFound      = fmt.Errorf("book not found: %w", apperr.ErrNotFound)
	ErrInsufficientStock = fmt.Errorf("insufficient stock: %w", apperr.ErrConflict)
	ErrInvalidQuantity   = apperr.Invalid("quantity", "must be positive")
)

// Book is the stock view of a catalog entry.
type Book struct {
	ID          int64 `json:"book_id"`
	Stock       int   `json:"stock"`
	IsAvailable bool  `json:"is_available"`
}

// InsufficientStockError carries the numbers behind a rejected reservation.
type InsufficientStockError struct {
	BookID    int64 `json:"book_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for book %d: requested %d, available %d", e.BookID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Ledger reserves and releases stock. Each call is atomic per book: readers
// never observe a value between two committed states.
type Ledger interface {
	Reserve(ctx context.Context, bookID int64, qty int) (Book, error)
	Release(ctx context.Context, bookID int64, qty int) (Book, error)
	HasStock(ctx context.Context, bookID int64, qty int) (bool, error)
	Get(ctx context.Context, bookID int64) (Book, error)
}

// Catalog is the price lookup checkout uses. Prices are in minor units.
type Catalog interface {
	Price(ctx context.Context, bookID int64) (int64, error)
}

// AsInsufficient extracts the detail of an insufficient stock failure.
func AsInsufficient(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}

func withStock(id int64, stock int) Book {
	return Book{ID: id, Stock: stock, IsAvailable: stock > 0}
}
