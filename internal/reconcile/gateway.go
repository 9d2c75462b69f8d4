// Package reconcile feeds external payment signals into order confirmation.
// Webhook, poll and manual channels may race or repeat; all of them end in
// orders.Manager.ConfirmPayment, which applies a payment at most once.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/payment"
)

// OrderService is the part of orders.Manager the gateway drives.
type OrderService interface {
	Get(ctx context.Context, id int64) (*orders.Order, error)
	ConfirmPayment(ctx context.Context, id int64, code string, amount int64, ch orders.PaymentChannel) (*orders.Order, bool, error)
	AbandonPayment(ctx context.Context, id int64) (*orders.Order, error)
}

// TransactionSource lists recent transfers on the shop account.
type TransactionSource interface {
	Recent(ctx context.Context, limit int) ([]payment.Transaction, error)
}

// ReplayStore remembers the response given to a successful webhook delivery,
// keyed by provider transaction code.
type ReplayStore interface {
	Get(ctx context.Context, code string) (WebhookOutcome, bool, error)
	Put(ctx context.Context, code string, out WebhookOutcome) error
}

// StatusCache holds the order status snapshots the status endpoint reads.
type StatusCache interface {
	Apply(ctx context.Context, snap orders.Snapshot) (bool, error)
}

type Config struct {
	Account     payment.BankAccount
	PollLimit   int
	PollTimeout time.Duration
}

type Gateway struct {
	orders  OrderService
	matcher *payment.Matcher
	source  TransactionSource
	replay  ReplayStore
	status  StatusCache
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Gateway)

func WithReplayStore(s ReplayStore) Option { return func(g *Gateway) { g.replay = s } }

func WithStatusCache(c StatusCache) Option { return func(g *Gateway) { g.status = c } }

func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

func NewGateway(svc OrderService, m *payment.Matcher, src TransactionSource, cfg Config, log *zap.Logger, opts ...Option) *Gateway {
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = 50
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		orders:  svc,
		matcher: m,
		source:  src,
		cfg:     cfg,
		log:     log.Named("reconcile"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WebhookNotice is a decoded provider push.
type WebhookNotice struct {
	ProviderID      string
	Code            string
	Content         string
	Amount          int64
	AccountNumber   string
	Gateway         string
	Reference       string
	TransactionDate time.Time
}

// WebhookOutcome is always returned with HTTP 200 so the provider stops
// retrying business-rule rejections.
type WebhookOutcome struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	OrderID         int64  `json:"invoiceId,omitempty"`
	TransactionCode string `json:"transactionCode,omitempty"`
}

// HandleWebhook validates and applies one webhook delivery. Only malformed
// notices and store failures return an error.
func (g *Gateway) HandleWebhook(ctx context.Context, n WebhookNotice) (WebhookOutcome, error) {
	if n.Amount <= 0 {
		webhookTotal.WithLabelValues("invalid").Inc()
		return WebhookOutcome{}, apperr.Invalid("amount", "must be positive")
	}
	if n.Content == "" {
		webhookTotal.WithLabelValues("invalid").Inc()
		return WebhookOutcome{}, apperr.Invalid("content", "must not be empty")
	}

	code := g.transactionCode(n)
	log := g.log.With(zap.String("transaction_code", code), zap.Int64("amount", n.Amount))

	if g.replay != nil {
		prev, ok, err := g.replay.Get(ctx, code)
		if err != nil {
			log.Warn("webhook replay lookup failed", zap.Error(err))
		} else if ok {
			webhookTotal.WithLabelValues("replayed").Inc()
			log.Info("webhook redelivery replayed", zap.Int64("order_id", prev.OrderID))
			return prev, nil
		}
	}

	out, err := g.applyWebhook(ctx, n, code, log)
	if err != nil {
		webhookTotal.WithLabelValues("error").Inc()
		return WebhookOutcome{}, err
	}
	if out.Success && g.replay != nil {
		if err := g.replay.Put(ctx, code, out); err != nil {
			log.Warn("webhook replay store failed", zap.Error(err))
		}
	}
	return out, nil
}

func (g *Gateway) applyWebhook(ctx context.Context, n WebhookNotice, code string, log *zap.Logger) (WebhookOutcome, error) {
	if acc := g.cfg.Account.Number; acc != "" && n.AccountNumber != "" && n.AccountNumber != acc {
		webhookTotal.WithLabelValues("foreign_account").Inc()
		log.Info("webhook for another account ignored", zap.String("account", n.AccountNumber))
		return WebhookOutcome{Message: "transfer to a different account, ignored"}, nil
	}

	id, strategy, ok := g.matcher.ExtractOrderID(n.Content)
	if !ok {
		webhookTotal.WithLabelValues("no_marker").Inc()
		log.Info("webhook without order marker", zap.String("content", n.Content))
		return WebhookOutcome{Message: "no order reference in transfer content"}, nil
	}
	log = log.With(zap.Int64("order_id", id), zap.String("strategy", strategy))

	o, err := g.orders.Get(ctx, id)
	if apperr.IsNotFound(err) {
		webhookTotal.WithLabelValues("not_found").Inc()
		log.Info("webhook for unknown order")
		return WebhookOutcome{Message: fmt.Sprintf("order %d not found", id), OrderID: id}, nil
	}
	if err != nil {
		return WebhookOutcome{}, err
	}
	if o.PaymentStatus == orders.PaymentPaid {
		webhookTotal.WithLabelValues("already_paid").Inc()
		return alreadyPaid(o), nil
	}

	updated, applied, err := g.orders.ConfirmPayment(ctx, id, code, n.Amount, orders.ChannelWebhook)
	switch {
	case orders.IsAmountMismatch(err):
		webhookTotal.WithLabelValues("amount_mismatch").Inc()
		log.Warn("webhook amount below order total", zap.Int64("total_price", o.TotalPrice))
		return WebhookOutcome{
			Message: fmt.Sprintf("amount mismatch: required %d, received %d", o.TotalPrice, n.Amount),
			OrderID: id,
		}, nil
	case errors.Is(err, orders.ErrInvalidTransition):
		webhookTotal.WithLabelValues("closed").Inc()
		log.Warn("webhook for closed order", zap.Stringer("status", o.Status))
		return WebhookOutcome{Message: fmt.Sprintf("order %d is %s", id, o.Status), OrderID: id}, nil
	case apperr.IsNotFound(err):
		webhookTotal.WithLabelValues("not_found").Inc()
		return WebhookOutcome{Message: fmt.Sprintf("order %d not found", id), OrderID: id}, nil
	case err != nil:
		return WebhookOutcome{}, err
	case !applied:
		webhookTotal.WithLabelValues("already_paid").Inc()
		return alreadyPaid(updated), nil
	}

	webhookTotal.WithLabelValues("confirmed").Inc()
	log.Info("webhook payment confirmed")
	g.cache(ctx, updated)
	return WebhookOutcome{
		Success:         true,
		Message:         "payment confirmed",
		OrderID:         id,
		TransactionCode: updated.TransactionCode,
	}, nil
}

// transactionCode prefers the provider's code, then its delivery id, then the
// bank reference.
func (g *Gateway) transactionCode(n WebhookNotice) string {
	switch {
	case n.Code != "":
		return n.Code
	case n.ProviderID != "":
		return "SEPAY_" + n.ProviderID
	case n.Reference != "":
		return n.Reference
	default:
		return "WEBHOOK_" + strconv.FormatInt(g.now().UnixMilli(), 10)
	}
}

func alreadyPaid(o *orders.Order) WebhookOutcome {
	return WebhookOutcome{
		Success:         true,
		Message:         "order already paid",
		OrderID:         o.ID,
		TransactionCode: o.TransactionCode,
	}
}

// PollResult is what a waiting payment page sees.
type PollResult struct {
	IsPaid          bool       `json:"isPaid"`
	Status          string     `json:"status"`
	TransactionCode string     `json:"transactionCode,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
}

func pollResult(o *orders.Order) PollResult {
	return PollResult{
		IsPaid:          o.PaymentStatus == orders.PaymentPaid,
		Status:          o.PaymentStatus.String(),
		TransactionCode: o.TransactionCode,
		PaidAt:          o.PaidAt,
	}
}

// Poll checks the provider's recent transactions for a payment of order id.
// Provider failures are logged and reported as still pending.
func (g *Gateway) Poll(ctx context.Context, id int64) (PollResult, error) {
	o, err := g.orders.Get(ctx, id)
	if err != nil {
		return PollResult{}, err
	}
	if o.PaymentStatus == orders.PaymentPaid {
		pollTotal.WithLabelValues("already_paid").Inc()
		return pollResult(o), nil
	}
	if o.Status.Terminal() {
		pollTotal.WithLabelValues("closed").Inc()
		return pollResult(o), nil
	}

	log := g.log.With(zap.Int64("order_id", id))

	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.PollTimeout)
	start := time.Now()
	txs, err := g.source.Recent(fetchCtx, g.cfg.PollLimit)
	cancel()
	providerLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		providerErrors.Inc()
		pollTotal.WithLabelValues("provider_error").Inc()
		log.Warn("transaction fetch failed, reporting pending", zap.Error(err))
		return pollResult(o), nil
	}

	hit, ok := g.matcher.Match(o, txs)
	if !ok {
		pollTotal.WithLabelValues("pending").Inc()
		log.Debug("no matching transaction", zap.Int("checked", len(txs)))
		return pollResult(o), nil
	}

	code := hit.Code
	if code == "" {
		code = "SEPAY_POLL_" + strconv.FormatInt(g.now().UnixMilli(), 10)
	}
	updated, applied, err := g.orders.ConfirmPayment(ctx, id, code, hit.Amount, orders.ChannelPoll)
	if err != nil {
		if apperr.IsConflict(err) {
			pollTotal.WithLabelValues("rejected").Inc()
			log.Warn("matched transaction rejected", zap.String("transaction_code", code), zap.Error(err))
			return pollResult(o), nil
		}
		return PollResult{}, err
	}
	if applied {
		pollTotal.WithLabelValues("confirmed").Inc()
		log.Info("poll payment confirmed", zap.String("transaction_code", code), zap.String("strategy", hit.Strategy))
		g.cache(ctx, updated)
	} else {
		pollTotal.WithLabelValues("already_paid").Inc()
	}
	return pollResult(updated), nil
}

type ManualResult struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	IsPaid          bool   `json:"isPaid"`
	TransactionCode string `json:"transactionCode"`
}

// ConfirmManually marks an order paid without any provider evidence. The
// observed amount is the order total, so the amount check always passes.
func (g *Gateway) ConfirmManually(ctx context.Context, id int64) (ManualResult, error) {
	o, err := g.orders.Get(ctx, id)
	if err != nil {
		return ManualResult{}, err
	}
	if o.PaymentStatus == orders.PaymentPaid {
		manualTotal.WithLabelValues("already_paid").Inc()
		return ManualResult{Success: true, Message: "order already paid", IsPaid: true, TransactionCode: o.TransactionCode}, nil
	}

	code := "MANUAL_" + strconv.FormatInt(g.now().UnixMilli(), 10)
	updated, applied, err := g.orders.ConfirmPayment(ctx, id, code, o.TotalPrice, orders.ChannelManual)
	if err != nil {
		manualTotal.WithLabelValues("rejected").Inc()
		return ManualResult{}, err
	}
	if !applied {
		manualTotal.WithLabelValues("already_paid").Inc()
		return ManualResult{Success: true, Message: "order already paid", IsPaid: true, TransactionCode: updated.TransactionCode}, nil
	}

	manualTotal.WithLabelValues("confirmed").Inc()
	g.log.Warn("payment confirmed manually", zap.Int64("order_id", id), zap.String("transaction_code", code))
	g.cache(ctx, updated)
	return ManualResult{Success: true, Message: "payment confirmed manually", IsPaid: true, TransactionCode: updated.TransactionCode}, nil
}

// Abandon cancels an unpaid order from the payment page.
func (g *Gateway) Abandon(ctx context.Context, id int64) (*orders.Order, error) {
	o, err := g.orders.AbandonPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	g.cache(ctx, o)
	return o, nil
}

// cache pushes the order's new status to the snapshot store. The database
// stays authoritative, so a failed write is only logged.
func (g *Gateway) cache(ctx context.Context, o *orders.Order) {
	if g.status == nil || o == nil {
		return
	}
	if _, err := g.status.Apply(ctx, orders.SnapshotOf(o)); err != nil {
		g.log.Warn("status snapshot write failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

// PaymentRequest builds the QR transfer request for an order.
func (g *Gateway) PaymentRequest(ctx context.Context, id int64) (payment.Request, error) {
	o, err := g.orders.Get(ctx, id)
	if err != nil {
		return payment.Request{}, err
	}
	return payment.BuildPaymentRequest(o, g.cfg.Account), nil
}
