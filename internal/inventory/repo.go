package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedger locks the book row (FOR UPDATE) for the whole read-modify-write so
// concurrent reservations of the same book queue behind each other.
type PgLedger struct{ DB *pgxpool.Pool }

func (r *PgLedger) Reserve(ctx context.Context, bookID int64, qty int) (Book, error) {
	if qty <= 0 {
		return Book{}, ErrInvalidQuantity
	}
	return r.mutate(ctx, bookID, func(stock int) (int, error) {
		if stock < qty {
			return 0, &InsufficientStockError{BookID: bookID, Requested: qty, Available: stock}
		}
		return stock - qty, nil
	})
}

func (r *PgLedger) Release(ctx context.Context, bookID int64, qty int) (Book, error) {
	if qty <= 0 {
		return Book{}, ErrInvalidQuantity
	}
	return r.mutate(ctx, bookID, func(stock int) (int, error) {
		return stock + qty, nil
	})
}

func (r *PgLedger) mutate(ctx context.Context, bookID int64, next func(stock int) (int, error)) (Book, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Book{}, fmt.Errorf("begin stock tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stock int
	err = tx.QueryRow(ctx, `SELECT stock FROM books WHERE id=$1 FOR UPDATE`, bookID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("lock book %d: %w", bookID, err)
	}

	updated, err := next(stock)
	if err != nil {
		return Book{}, err
	}

	// is_available is derived here and nowhere else.
	if _, err := tx.Exec(ctx, `
		UPDATE books SET stock = $2, is_available = $2 > 0, updated_at = now()
		WHERE id = $1`, bookID, updated); err != nil {
		return Book{}, fmt.Errorf("update book %d: %w", bookID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Book{}, fmt.Errorf("commit stock tx: %w", err)
	}
	return withStock(bookID, updated), nil
}

func (r *PgLedger) HasStock(ctx context.Context, bookID int64, qty int) (bool, error) {
	b, err := r.Get(ctx, bookID)
	if err != nil {
		return false, err
	}
	return b.Stock >= qty, nil
}

func (r *PgLedger) Get(ctx context.Context, bookID int64) (Book, error) {
	var stock int
	err := r.DB.QueryRow(ctx, `SELECT stock FROM books WHERE id=$1`, bookID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book %d: %w", bookID, err)
	}
	return withStock(bookID, stock), nil
}

// Price reads the current catalog price; checkout never trusts the client's.
func (r *PgLedger) Price(ctx context.Context, bookID int64) (int64, error) {
	var price int64
	err := r.DB.QueryRow(ctx, `SELECT price FROM books WHERE id=$1`, bookID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrBookNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("price book %d: %w", bookID, err)
	}
	return price, nil
}
