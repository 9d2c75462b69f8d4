package orders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_checkouts_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})

	stockRollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_stock_rollbacks_total",
		Help: "Reservations released because a checkout failed mid-sequence.",
	})

	paymentConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_payment_confirmations_total",
		Help: "Payment confirmation attempts by channel and result.",
	}, []string{"channel", "result"})

	statusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_order_transitions_total",
		Help: "Applied order status transitions.",
	}, []string{"from", "to"})
)
