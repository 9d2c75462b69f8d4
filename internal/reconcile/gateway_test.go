package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/apperr"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/payment"
)

type user struct{}

func (user) UserID() int64   { return 1 }
func (user) Email() string   { return "reader@example.com" }
func (user) Roles() []string { return nil }

type stubSource struct {
	mu    sync.Mutex
	txs   []payment.Transaction
	err   error
	calls int
	limit int
}

func (s *stubSource) Recent(ctx context.Context, limit int) ([]payment.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.limit = limit
	return s.txs, s.err
}

type slowSource struct{}

func (slowSource) Recent(ctx context.Context, _ int) ([]payment.Transaction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type mapReplay struct {
	mu sync.Mutex
	m  map[string]WebhookOutcome
}

func (r *mapReplay) Get(_ context.Context, code string) (WebhookOutcome, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.m[code]
	return out, ok, nil
}

func (r *mapReplay) Put(_ context.Context, code string, out WebhookOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[code] = out
	return nil
}

type recordingCache struct {
	mu    sync.Mutex
	snaps map[int64]orders.Snapshot
	err   error
}

func (c *recordingCache) Apply(_ context.Context, snap orders.Snapshot) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	c.snaps[snap.OrderID] = snap
	return true, nil
}

func (c *recordingCache) get(id int64) (orders.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snaps[id]
	return s, ok
}

var shipTo = orders.ShippingInfo{ReceiverName: "Minh", Phone: "0912345678", Address: "5 Le Loi, Q1"}

var clock = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type env struct {
	gw     *Gateway
	mgr    *orders.Manager
	source *stubSource
	replay *mapReplay
	cache  *recordingCache
	ledger *inventory.MemoryLedger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ledger := inventory.NewMemoryLedger()
	ledger.Put(1, 100)
	mgr := orders.NewManager(orders.NewMemoryRepository(), ledger, ledger, zap.NewNop(),
		orders.WithClock(func() time.Time { return clock }))
	src := &stubSource{}
	replay := &mapReplay{m: map[string]WebhookOutcome{}}
	cache := &recordingCache{snaps: map[int64]orders.Snapshot{}}
	gw := NewGateway(mgr, payment.NewMatcher(true), src, Config{
		Account: payment.BankAccount{Number: "0123456789", Name: "NHA SACH", BankCode: "TPB"},
	}, zap.NewNop(), WithReplayStore(replay), WithStatusCache(cache), WithClock(func() time.Time { return clock }))
	return &env{gw: gw, mgr: mgr, source: src, replay: replay, cache: cache, ledger: ledger}
}

// placeOrders creates n orders of the given total and returns the last one.
func (e *env) placeOrders(t *testing.T, n int, total int64) *orders.Order {
	t.Helper()
	e.ledger.SetPrice(1, total)
	var o *orders.Order
	for i := 0; i < n; i++ {
		var err error
		o, err = e.mgr.CreateFromCart(context.Background(), user{}, orders.Cart{Items: []orders.CartItem{
			{BookID: 1, Quantity: 1},
		}}, shipTo)
		require.NoError(t, err)
	}
	return o
}

func (e *env) order(t *testing.T, id int64) *orders.Order {
	t.Helper()
	o, err := e.mgr.Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

// Scenario B.
func TestHandleWebhook_ConfirmsAndReplays(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 7, 50000)
	require.Equal(t, int64(7), o.ID)

	notice := WebhookNotice{Code: "FT26060", Content: "ORDER_7", Amount: 50000, AccountNumber: "0123456789"}

	out, err := e.gw.HandleWebhook(context.Background(), notice)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, int64(7), out.OrderID)
	assert.Equal(t, "FT26060", out.TransactionCode)

	paid := e.order(t, 7)
	assert.Equal(t, orders.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, orders.StatusProcessing, paid.Status)
	assert.Equal(t, "FT26060", paid.TransactionCode)

	again, err := e.gw.HandleWebhook(context.Background(), notice)
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, paid, e.order(t, 7))
}

func TestHandleWebhook_AlreadyPaidWithoutReplay(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 100)
	_, _, err := e.mgr.ConfirmPayment(context.Background(), o.ID, "FIRST", 100, orders.ChannelManual)
	require.NoError(t, err)

	out, err := e.gw.HandleWebhook(context.Background(), WebhookNotice{Code: "SECOND", Content: "ORDER_1", Amount: 100})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "order already paid", out.Message)
	assert.Equal(t, "FIRST", out.TransactionCode)
	assert.Equal(t, "FIRST", e.order(t, o.ID).TransactionCode)
}

func TestHandleWebhook_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		notice  WebhookNotice
		message string
	}{
		{"unknown order", WebhookNotice{Code: "A", Content: "ORDER_999", Amount: 100}, "order 999 not found"},
		{"no marker", WebhookNotice{Code: "B", Content: "chuyen tien", Amount: 100}, "no order reference in transfer content"},
		{"amount short", WebhookNotice{Code: "C", Content: "ORDER_1", Amount: 99}, "amount mismatch: required 100, received 99"},
		{"other account", WebhookNotice{Code: "D", Content: "ORDER_1", Amount: 100, AccountNumber: "999"}, "transfer to a different account, ignored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.placeOrders(t, 1, 100)

			out, err := e.gw.HandleWebhook(context.Background(), tt.notice)
			require.NoError(t, err)
			assert.False(t, out.Success)
			assert.Equal(t, tt.message, out.Message)

			o := e.order(t, 1)
			assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
			assert.Empty(t, e.replay.m)
		})
	}
}

func TestHandleWebhook_ClosedOrder(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 100)
	_, err := e.mgr.Cancel(context.Background(), o.ID)
	require.NoError(t, err)

	out, err := e.gw.HandleWebhook(context.Background(), WebhookNotice{Code: "X", Content: "ORDER_1", Amount: 100})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, orders.PaymentPending, e.order(t, o.ID).PaymentStatus)
}

func TestHandleWebhook_Malformed(t *testing.T) {
	e := newEnv(t)
	e.placeOrders(t, 1, 100)

	_, err := e.gw.HandleWebhook(context.Background(), WebhookNotice{Content: "ORDER_1", Amount: 0})
	assert.True(t, apperr.IsValidation(err))

	_, err = e.gw.HandleWebhook(context.Background(), WebhookNotice{Content: "", Amount: 100})
	assert.True(t, apperr.IsValidation(err))

	assert.Equal(t, orders.PaymentPending, e.order(t, 1).PaymentStatus)
}

func TestHandleWebhook_SynthesisedCode(t *testing.T) {
	tests := []struct {
		name   string
		notice WebhookNotice
		want   string
	}{
		{"provider id", WebhookNotice{ProviderID: "92704", Content: "ORDER_1", Amount: 100}, "SEPAY_92704"},
		{"reference", WebhookNotice{Reference: "REF1", Content: "ORDER_1", Amount: 100}, "REF1"},
		{"timestamp", WebhookNotice{Content: "ORDER_1", Amount: 100}, "WEBHOOK_1772357400000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.placeOrders(t, 1, 100)

			out, err := e.gw.HandleWebhook(context.Background(), tt.notice)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.TransactionCode)
			assert.Equal(t, tt.want, e.order(t, 1).TransactionCode)
		})
	}
}

func TestPoll(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 3, 20000)

	res, err := e.gw.Poll(context.Background(), o.ID)
	require.NoError(t, err)
	assert.False(t, res.IsPaid)
	assert.Equal(t, "PENDING", res.Status)
	assert.Equal(t, 50, e.source.limit)

	e.source.txs = []payment.Transaction{
		{Code: "T1", Content: "ORDER_2", Amount: 20000},
		{Code: "T2", Content: "ORDER_3", Amount: 20000},
	}
	res, err = e.gw.Poll(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, res.IsPaid)
	assert.Equal(t, "PAID", res.Status)
	assert.Equal(t, "T2", res.TransactionCode)
	require.NotNil(t, res.PaidAt)

	calls := e.source.calls
	res, err = e.gw.Poll(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, res.IsPaid)
	assert.Equal(t, calls, e.source.calls, "paid orders must not hit the provider")
}

func TestPoll_ProviderFailureReportsPending(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 100)
	e.source.err = errors.New("connection refused")

	res, err := e.gw.Poll(context.Background(), o.ID)
	require.NoError(t, err)
	assert.False(t, res.IsPaid)
	assert.Equal(t, "PENDING", res.Status)
}

func TestPoll_ProviderTimeout(t *testing.T) {
	ledger := inventory.NewMemoryLedger()
	ledger.Put(1, 5)
	ledger.SetPrice(1, 100)
	mgr := orders.NewManager(orders.NewMemoryRepository(), ledger, ledger, zap.NewNop())
	o, err := mgr.CreateFromCart(context.Background(), user{}, orders.Cart{Items: []orders.CartItem{
		{BookID: 1, UnitPrice: 100, Quantity: 1},
	}}, shipTo)
	require.NoError(t, err)

	gw := NewGateway(mgr, payment.NewMatcher(false), slowSource{}, Config{PollTimeout: 20 * time.Millisecond}, nil)
	res, err := gw.Poll(context.Background(), o.ID)
	require.NoError(t, err)
	assert.False(t, res.IsPaid)
}

func TestPoll_UnknownOrder(t *testing.T) {
	e := newEnv(t)
	_, err := e.gw.Poll(context.Background(), 77)
	assert.True(t, apperr.IsNotFound(err))
}

func TestConfirmManually(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 123456)

	res, err := e.gw.ConfirmManually(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.IsPaid)
	assert.Equal(t, "MANUAL_1772357400000", res.TransactionCode)

	again, err := e.gw.ConfirmManually(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, res.TransactionCode, again.TransactionCode)

	_, err = e.gw.ConfirmManually(context.Background(), 404)
	assert.True(t, apperr.IsNotFound(err))
}

// Any channel after the first success leaves the order exactly as it was.
func TestChannels_NoChangeAfterFirstSuccess(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 100)
	e.source.txs = []payment.Transaction{{Code: "POLL1", Content: "ORDER_1", Amount: 100}}

	_, err := e.gw.HandleWebhook(context.Background(), WebhookNotice{Code: "HOOK1", Content: "ORDER_1", Amount: 100})
	require.NoError(t, err)
	first := e.order(t, o.ID)

	_, err = e.gw.Poll(context.Background(), o.ID)
	require.NoError(t, err)
	_, err = e.gw.ConfirmManually(context.Background(), o.ID)
	require.NoError(t, err)
	_, err = e.gw.HandleWebhook(context.Background(), WebhookNotice{Code: "HOOK2", Content: "ORDER_1", Amount: 500})
	require.NoError(t, err)

	assert.Equal(t, first, e.order(t, o.ID))
	assert.Equal(t, "HOOK1", first.TransactionCode)
}

func TestChannels_ConcurrentRace(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 100)
	e.source.txs = []payment.Transaction{{Code: "POLL1", Content: "ORDER_1", Amount: 100}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = e.gw.HandleWebhook(context.Background(), WebhookNotice{Code: "HOOK1", Content: "ORDER_1", Amount: 100})
		}()
		go func() {
			defer wg.Done()
			_, _ = e.gw.Poll(context.Background(), o.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = e.gw.ConfirmManually(context.Background(), o.ID)
		}()
	}
	wg.Wait()

	got := e.order(t, o.ID)
	assert.True(t, got.IsPaid())
	assert.Contains(t, []string{"HOOK1", "POLL1", "MANUAL_1772357400000"}, got.TransactionCode)
}

func TestAbandonAndPaymentRequest(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 50000)

	req, err := e.gw.PaymentRequest(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORDER_1", req.Content)
	assert.Equal(t, "https://qr.sepay.vn/img?acc=0123456789&bank=TPB&amount=50000&des=ORDER_1", req.ProviderURL)

	cancelled, err := e.gw.Abandon(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.Equal(t, orders.PaymentFailed, cancelled.PaymentStatus)

	b, err := e.ledger.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 100, b.Stock)
}

func TestStatusCacheFollowsPaymentChannels(t *testing.T) {
	e := newEnv(t)
	e.placeOrders(t, 4, 30000)
	ctx := context.Background()

	_, err := e.gw.HandleWebhook(ctx, WebhookNotice{Code: "W1", Content: "ORDER_1", Amount: 30000})
	require.NoError(t, err)

	e.source.txs = []payment.Transaction{{Code: "P2", Content: "ORDER_2", Amount: 30000}}
	_, err = e.gw.Poll(ctx, 2)
	require.NoError(t, err)

	_, err = e.gw.ConfirmManually(ctx, 3)
	require.NoError(t, err)

	_, err = e.gw.Abandon(ctx, 4)
	require.NoError(t, err)

	tests := []struct {
		id      int64
		status  orders.Status
		payment orders.PaymentStatus
		code    string
	}{
		{1, orders.StatusProcessing, orders.PaymentPaid, "W1"},
		{2, orders.StatusProcessing, orders.PaymentPaid, "P2"},
		{3, orders.StatusProcessing, orders.PaymentPaid, "MANUAL_1772357400000"},
		{4, orders.StatusCancelled, orders.PaymentFailed, ""},
	}
	for _, tt := range tests {
		snap, ok := e.cache.get(tt.id)
		require.True(t, ok, "order %d", tt.id)
		assert.Equal(t, tt.status, snap.Status, "order %d", tt.id)
		assert.Equal(t, tt.payment, snap.PaymentStatus, "order %d", tt.id)
		assert.Equal(t, tt.code, snap.TransactionCode, "order %d", tt.id)
	}
}

func TestStatusCacheFailureDoesNotFailPayment(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 100)
	e.cache.err = errors.New("redis down")

	out, err := e.gw.HandleWebhook(context.Background(), WebhookNotice{Code: "W9", Content: "ORDER_1", Amount: 100})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, orders.PaymentPaid, e.order(t, o.ID).PaymentStatus)
}

func TestHandleWebhook_OneUnitNeverPaysOrder(t *testing.T) {
	e := newEnv(t)
	o := e.placeOrders(t, 1, 89000)

	out, err := e.gw.HandleWebhook(context.Background(), WebhookNotice{Code: "W1", Content: "ORDER_1", Amount: 1})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, orders.PaymentPending, e.order(t, o.ID).PaymentStatus)
	_, cached := e.cache.get(o.ID)
	assert.False(t, cached)
}
