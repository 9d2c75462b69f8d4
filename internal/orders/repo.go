package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository stores orders in Postgres. Update locks the order row with
// SELECT ... FOR UPDATE for the duration of the mutation.
type PgRepository struct{ DB *pgxpool.Pool }

const orderColumns = `id, user_id, total_price, status, payment_status,
	COALESCE(transaction_code, ''), paid_at,
	receiver_name, email, phone, address, note, payment_method,
	created_at, updated_at`

func (r *PgRepository) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := o.Shipping
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(user_id, total_price, status, payment_status,
			receiver_name, email, phone, address, note, payment_method, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		o.UserID, o.TotalPrice, o.Status.String(), o.PaymentStatus.String(),
		s.ReceiverName, s.Email, s.Phone, s.Address, s.Note, s.PaymentMethod,
		o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, book_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, i, it.BookID, it.Quantity, it.UnitPrice,
		); err != nil {
			return fmt.Errorf("insert order item %d: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, id int64) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin order read: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := loadOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return o, tx.Commit(ctx)
}

func (r *PgRepository) Update(ctx context.Context, id int64, fn Mutation) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := loadOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	changed, err := fn(o)
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	var code any
	if o.TransactionCode != "" {
		code = o.TransactionCode
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, transaction_code=$4, paid_at=$5, updated_at=$6
		WHERE id=$1`,
		o.ID, o.Status.String(), o.PaymentStatus.String(), code, o.PaidAt, o.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit order tx: %w", err)
	}
	return o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *PgRepository) ListByUser(ctx context.Context, userID int64) ([]*Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	f = f.normalized()
	if f.Status == 0 {
		return r.list(ctx, `SELECT `+orderColumns+` FROM orders
			ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, f.Limit, f.Offset)
	}
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status=$3 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, f.Limit, f.Offset, f.Status.String())
}

func (r *PgRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	counts, _, err := r.statusTotals(ctx)
	return counts, err
}

func (r *PgRepository) RevenueByStatus(ctx context.Context) (map[Status]int64, error) {
	_, revenue, err := r.statusTotals(ctx)
	return revenue, err
}

func (r *PgRepository) statusTotals(ctx context.Context) (map[Status]int64, map[Status]int64, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_price), 0)
		FROM orders GROUP BY status`)
	if err != nil {
		return nil, nil, fmt.Errorf("order totals: %w", err)
	}
	defer rows.Close()

	counts, revenue := make(map[Status]int64), make(map[Status]int64)
	for rows.Next() {
		var (
			name     string
			n, total int64
		)
		if err := rows.Scan(&name, &n, &total); err != nil {
			return nil, nil, err
		}
		st, err := ParseStatus(name)
		if err != nil {
			return nil, nil, fmt.Errorf("order totals: %w", err)
		}
		counts[st], revenue[st] = n, total
	}
	return counts, revenue, rows.Err()
}

func (r *PgRepository) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin order list: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]*Order, 0)
	byID := make(map[int64]*Order)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		byID[o.ID] = o
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(out) == 0 {
		return out, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(out))
	for _, o := range out {
		ids = append(ids, o.ID)
	}
	items, err := tx.Query(ctx, `
		SELECT order_id, book_id, quantity, unit_price FROM order_items
		WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer items.Close()
	for items.Next() {
		var (
			orderID int64
			it      Item
		)
		if err := items.Scan(&orderID, &it.BookID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		if o := byID[orderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	if err := items.Err(); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return out, tx.Commit(ctx)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o           Order
		status, pay string
		paidAt      *time.Time
	)
	s := &o.Shipping
	if err := row.Scan(
		&o.ID, &o.UserID, &o.TotalPrice, &status, &pay, &o.TransactionCode, &paidAt,
		&s.ReceiverName, &s.Email, &s.Phone, &s.Address, &s.Note, &s.PaymentMethod,
		&o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.PaidAt = paidAt
	var err error
	if o.Status, err = ParseStatus(status); err != nil {
		return nil, fmt.Errorf("order %d: %w", o.ID, err)
	}
	if o.PaymentStatus, err = ParsePaymentStatus(pay); err != nil {
		return nil, fmt.Errorf("order %d: %w", o.ID, err)
	}
	return &o, nil
}

func loadOrder(ctx context.Context, tx pgx.Tx, query string, id int64) (*Order, error) {
	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", id, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT book_id, quantity, unit_price FROM order_items
		WHERE order_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("load order %d items: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.BookID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}
