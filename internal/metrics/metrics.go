// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "endpoint"})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_status_transitions_total",
		Help: "Transactions moved out of pending, by provider and resulting status",
	}, []string{"provider", "status"})

	WebhookRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_rejections_total",
		Help: "Webhooks refused before touching state",
	}, []string{"provider", "reason"})

	WalletCredits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_wallet_credits_total",
		Help: "Application wallet credits created",
	})
)
