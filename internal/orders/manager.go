package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
)

// Manager owns the order state machine. It is the only writer of order status
// and payment fields, and the only caller of the stock ledger.
type Manager struct {
	repo    Repository
	stock   inventory.Ledger
	catalog inventory.Catalog
	events  EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

type Option func(*Manager)

func WithEvents(p EventPublisher) Option { return func(m *Manager) { m.events = p } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(repo Repository, stock inventory.Ledger, catalog inventory.Catalog, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		repo:    repo,
		stock:   stock,
		catalog: catalog,
		log:     log.Named("orders"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Get(ctx context.Context, id int64) (*Order, error) {
	return m.repo.Get(ctx, id)
}

// CreateFromCart turns a cart into a PENDING/PENDING order. Every line is
// repriced from the catalog. Stock is reserved all-or-nothing: a failure at
// any point releases whatever was already taken.
func (m *Manager) CreateFromCart(ctx context.Context, p Principal, cart Cart, ship ShippingInfo) (*Order, error) {
	if err := validateCheckout(p, cart, ship); err != nil {
		checkoutsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	cart, total, err := m.price(ctx, cart)
	if err != nil {
		if errors.Is(err, ErrPriceChanged) {
			checkoutsTotal.WithLabelValues("price_changed").Inc()
		} else {
			checkoutsTotal.WithLabelValues("invalid").Inc()
		}
		return nil, err
	}

	// Pre-check every line before touching stock. Quantities for the same book
	// are summed so duplicate lines cannot pass individually.
	need := make(map[int64]int, len(cart.Items))
	for _, it := range cart.Items {
		need[it.BookID] += it.Quantity
	}
	for _, it := range cart.Items {
		ok, err := m.stock.HasStock(ctx, it.BookID, need[it.BookID])
		if err != nil {
			checkoutsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		if !ok {
			checkoutsTotal.WithLabelValues("out_of_stock").Inc()
			return nil, m.insufficient(ctx, it.BookID, need[it.BookID])
		}
	}

	reserved := make([]CartItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		if _, err := m.stock.Reserve(ctx, it.BookID, it.Quantity); err != nil {
			m.rollback(ctx, reserved)
			if _, short := inventory.AsInsufficient(err); short {
				checkoutsTotal.WithLabelValues("out_of_stock").Inc()
			} else {
				checkoutsTotal.WithLabelValues("error").Inc()
			}
			return nil, err
		}
		reserved = append(reserved, it)
	}

	now := m.now()
	o := &Order{
		UserID:        p.UserID(),
		Items:         make([]Item, 0, len(cart.Items)),
		TotalPrice:    total,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Shipping:      ship,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if o.Shipping.Email == "" {
		o.Shipping.Email = p.Email()
	}
	for _, it := range cart.Items {
		o.Items = append(o.Items, Item{BookID: it.BookID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	if err := m.repo.Create(ctx, o); err != nil {
		m.rollback(ctx, reserved)
		checkoutsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persist order: %w", err)
	}
	checkoutsTotal.WithLabelValues("created").Inc()
	m.log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.Int64("user_id", o.UserID),
		zap.Int64("total_price", o.TotalPrice),
		zap.Int("lines", len(o.Items)),
	)

	m.publish(ctx, TopicOrderCreated, EventOrderCreated, o, OrderCreatedPayload{
		Snapshot:   SnapshotOf(o),
		UserID:     o.UserID,
		Items:      o.Items,
		TotalPrice: o.TotalPrice,
	})
	return o.Clone(), nil
}

// UpdateStatus applies an administrative transition. Moving into CANCELLED
// gives the stock back the same way Cancel does.
func (m *Manager) UpdateStatus(ctx context.Context, id int64, target Status) (*Order, error) {
	if !target.Valid() {
		return nil, apperr.Invalid("status", "unknown status")
	}

	var from Status
	changed := false
	o, err := m.repo.Update(ctx, id, func(o *Order) (bool, error) {
		from = o.Status
		if o.Status == target {
			return false, nil
		}
		if !CanTransition(o.Status, target) {
			return false, &InvalidTransitionError{From: o.Status, To: target}
		}
		o.Status = target
		o.UpdatedAt = m.now()
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	statusTransitionsTotal.WithLabelValues(from.String(), target.String()).Inc()
	m.log.Info("order status changed",
		zap.Int64("order_id", id),
		zap.Stringer("from", from),
		zap.Stringer("to", target),
	)
	if target == StatusCancelled {
		m.releaseOrder(ctx, o)
		m.publish(ctx, TopicOrderCancelled, EventOrderCancelled, o, OrderCancelledPayload{
			Snapshot: SnapshotOf(o), Reason: "STATUS_UPDATE",
		})
		return o, nil
	}
	m.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, o, StatusChangedPayload{
		Snapshot: SnapshotOf(o), From: from,
	})
	return o, nil
}

// Cancel is the customer cancellation: only a PENDING order can be cancelled.
// Cancelling an already cancelled order succeeds without releasing again.
func (m *Manager) Cancel(ctx context.Context, id int64) (*Order, error) {
	changed := false
	o, err := m.repo.Update(ctx, id, func(o *Order) (bool, error) {
		switch o.Status {
		case StatusCancelled:
			return false, nil
		case StatusPending:
		default:
			return false, &InvalidTransitionError{From: o.Status, To: StatusCancelled}
		}
		o.Status = StatusCancelled
		o.UpdatedAt = m.now()
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	statusTransitionsTotal.WithLabelValues(StatusPending.String(), StatusCancelled.String()).Inc()
	m.log.Info("order cancelled", zap.Int64("order_id", id))
	m.releaseOrder(ctx, o)
	m.publish(ctx, TopicOrderCancelled, EventOrderCancelled, o, OrderCancelledPayload{
		Snapshot: SnapshotOf(o), Reason: "CANCELLED_BY_USER",
	})
	return o, nil
}

// AbandonPayment backs the payment page's cancel action: the order is
// cancelled, the payment marked FAILED and the stock released. Only an
// unpaid PENDING order qualifies; an already cancelled order is a no-op.
func (m *Manager) AbandonPayment(ctx context.Context, id int64) (*Order, error) {
	changed := false
	o, err := m.repo.Update(ctx, id, func(o *Order) (bool, error) {
		if o.Status == StatusCancelled {
			return false, nil
		}
		if o.Status != StatusPending || o.PaymentStatus != PaymentPending {
			return false, &InvalidTransitionError{From: o.Status, To: StatusCancelled}
		}
		o.Status = StatusCancelled
		o.PaymentStatus = PaymentFailed
		o.UpdatedAt = m.now()
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return o, nil
	}

	statusTransitionsTotal.WithLabelValues(StatusPending.String(), StatusCancelled.String()).Inc()
	m.log.Info("payment abandoned", zap.Int64("order_id", id))
	m.releaseOrder(ctx, o)
	m.publish(ctx, TopicOrderCancelled, EventOrderCancelled, o, OrderCancelledPayload{
		Snapshot: SnapshotOf(o), Reason: "PAYMENT_ABANDONED",
	})
	return o, nil
}

// ConfirmPayment marks an order PAID. It is idempotent: once PAID, every
// further call returns the stored order with applied=false, whatever code or
// amount it carries. The paid check and the write happen under the order lock.
func (m *Manager) ConfirmPayment(ctx context.Context, id int64, code string, amount int64, ch PaymentChannel) (*Order, bool, error) {
	if code == "" {
		return nil, false, apperr.Invalid("transaction_code", "must not be empty")
	}

	applied := false
	o, err := m.repo.Update(ctx, id, func(o *Order) (bool, error) {
		if o.PaymentStatus == PaymentPaid {
			return false, nil
		}
		if o.Status.Terminal() {
			return false, &InvalidTransitionError{From: o.Status, To: StatusProcessing}
		}
		if amount < o.TotalPrice {
			return false, &AmountMismatchError{Required: o.TotalPrice, Observed: amount}
		}
		now := m.now()
		o.PaymentStatus = PaymentPaid
		o.TransactionCode = code
		o.PaidAt = &now
		if o.Status == StatusPending {
			o.Status = StatusProcessing
		}
		o.UpdatedAt = now
		applied = true
		return true, nil
	})
	switch {
	case err != nil && IsAmountMismatch(err):
		paymentConfirmationsTotal.WithLabelValues(string(ch), "mismatch").Inc()
		return nil, false, err
	case err != nil:
		paymentConfirmationsTotal.WithLabelValues(string(ch), "rejected").Inc()
		return nil, false, err
	case !applied:
		paymentConfirmationsTotal.WithLabelValues(string(ch), "noop").Inc()
		return o, false, nil
	}

	paymentConfirmationsTotal.WithLabelValues(string(ch), "applied").Inc()
	m.log.Info("payment confirmed",
		zap.Int64("order_id", id),
		zap.String("transaction_code", code),
		zap.Int64("amount", amount),
		zap.String("channel", string(ch)),
	)
	m.publish(ctx, TopicPaymentConfirmed, EventPaymentConfirmed, o, PaymentConfirmedPayload{
		Snapshot: SnapshotOf(o),
		Amount:   amount,
		Channel:  ch,
		PaidAt:   *o.PaidAt,
	})
	return o, true, nil
}

// maxLineQuantity keeps summed quantities far from int overflow.
const maxLineQuantity = 10000

func validateCheckout(p Principal, cart Cart, ship ShippingInfo) error {
	if p == nil {
		return ErrNoPrincipal
	}
	if len(cart.Items) == 0 {
		return ErrEmptyCart
	}
	for i, it := range cart.Items {
		switch {
		case it.BookID <= 0:
			return apperr.Invalid(fmt.Sprintf("items[%d].book_id", i), "must be positive")
		case it.Quantity <= 0:
			return apperr.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be positive")
		case it.Quantity > maxLineQuantity:
			return apperr.Invalid(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must not exceed %d", maxLineQuantity))
		case it.UnitPrice < 0:
			return apperr.Invalid(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
	}
	if _, err := cart.Total(); err != nil {
		return err
	}
	if strings.TrimSpace(ship.Address) == "" {
		return apperr.Invalid("shipping.address", "must not be empty")
	}
	if strings.TrimSpace(ship.Phone) == "" {
		return apperr.Invalid("shipping.phone", "must not be empty")
	}
	return nil
}

// price replaces every quoted unit price with the catalog's. A quote that
// disagrees with the catalog is rejected so the buyer sees the new price.
func (m *Manager) price(ctx context.Context, cart Cart) (Cart, int64, error) {
	priced := Cart{Items: make([]CartItem, 0, len(cart.Items))}
	for _, it := range cart.Items {
		current, err := m.catalog.Price(ctx, it.BookID)
		if err != nil {
			return Cart{}, 0, err
		}
		if it.UnitPrice != 0 && it.UnitPrice != current {
			return Cart{}, 0, &PriceChangedError{BookID: it.BookID, Quoted: it.UnitPrice, Current: current}
		}
		it.UnitPrice = current
		priced.Items = append(priced.Items, it)
	}
	total, err := priced.Total()
	if err != nil {
		return Cart{}, 0, err
	}
	return priced, total, nil
}

func (m *Manager) insufficient(ctx context.Context, bookID int64, qty int) error {
	b, err := m.stock.Get(ctx, bookID)
	if err != nil {
		return err
	}
	return &inventory.InsufficientStockError{BookID: bookID, Requested: qty, Available: b.Stock}
}

// rollback releases reservations in reverse order. It runs detached from the
// request deadline: a half-finished rollback leaks stock.
func (m *Manager) rollback(ctx context.Context, reserved []CartItem) {
	if len(reserved) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		it := reserved[i]
		if _, err := m.stock.Release(ctx, it.BookID, it.Quantity); err != nil {
			m.log.Error("rollback release failed",
				zap.Int64("book_id", it.BookID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
			continue
		}
		stockRollbacksTotal.Inc()
	}
}

// releaseOrder returns an order's items to stock after it was cancelled. The
// cancellation is already committed, so failures are logged, not returned.
func (m *Manager) releaseOrder(ctx context.Context, o *Order) {
	ctx = context.WithoutCancel(ctx)
	for _, it := range o.Items {
		if _, err := m.stock.Release(ctx, it.BookID, it.Quantity); err != nil {
			m.log.Error("release after cancel failed",
				zap.Int64("order_id", o.ID),
				zap.Int64("book_id", it.BookID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) publish(ctx context.Context, topic, eventType string, o *Order, payload any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, topic, eventType, o.ID, payload); err != nil {
		m.log.Warn("publish order event failed",
			zap.String("topic", topic),
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// GetFor returns an order the principal may see.
func (m *Manager) GetFor(ctx context.Context, p Principal, id int64) (*Order, error) {
	o, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(p, o); err != nil {
		return nil, err
	}
	return o, nil
}

// StatusCounts has an entry for every status, zero included.
type StatusCounts map[Status]int64

func newStatusCounts() StatusCounts {
	c := make(StatusCounts, len(statusNames))
	for s := range statusNames {
		c[s] = 0
	}
	return c
}

// UserOrders is a buyer's order history.
type UserOrders struct {
	Orders []*Order     `json:"orders"`
	Counts StatusCounts `json:"counts"`
}

func (m *Manager) ListForUser(ctx context.Context, p Principal) (UserOrders, error) {
	if p == nil {
		return UserOrders{}, ErrNoPrincipal
	}
	list, err := m.repo.ListByUser(ctx, p.UserID())
	if err != nil {
		return UserOrders{}, err
	}
	counts := newStatusCounts()
	for _, o := range list {
		counts[o.Status]++
	}
	return UserOrders{Orders: list, Counts: counts}, nil
}

// ListOrders is the admin view over every order.
func (m *Manager) ListOrders(ctx context.Context, p Principal, f ListFilter) ([]*Order, error) {
	if err := RequireAdmin(p); err != nil {
		return nil, err
	}
	if f.Status != 0 && !f.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown status")
	}
	return m.repo.List(ctx, f)
}

type Statistics struct {
	Counts  StatusCounts `json:"counts"`
	Revenue StatusCounts `json:"revenue"`
}

// Statistics reports order count and revenue per status.
func (m *Manager) Statistics(ctx context.Context, p Principal) (Statistics, error) {
	if err := RequireAdmin(p); err != nil {
		return Statistics{}, err
	}
	counts, err := m.repo.CountByStatus(ctx)
	if err != nil {
		return Statistics{}, err
	}
	revenue, err := m.repo.RevenueByStatus(ctx)
	if err != nil {
		return Statistics{}, err
	}
	st := Statistics{Counts: newStatusCounts(), Revenue: newStatusCounts()}
	for s, n := range counts {
		st.Counts[s] = n
	}
	for s, v := range revenue {
		st.Revenue[s] = v
	}
	return st, nil
}
