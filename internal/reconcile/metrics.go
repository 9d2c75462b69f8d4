package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_webhook_deliveries_total",
		Help: "Webhook deliveries by outcome.",
	}, []string{"outcome"})

	pollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_polls_total",
		Help: "Payment polls by outcome.",
	}, []string{"outcome"})

	manualTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_manual_confirmations_total",
		Help: "Manual payment overrides by outcome.",
	}, []string{"outcome"})

	providerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_provider_errors_total",
		Help: "Failed transaction list fetches.",
	})

	providerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_provider_fetch_seconds",
		Help:    "Latency of transaction list fetches.",
		Buckets: prometheus.DefBuckets,
	})
)
