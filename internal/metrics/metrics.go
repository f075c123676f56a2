package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dairy_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dairy_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// MessagesTotal counts delivery outcomes: sent, failed, skipped.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dairy_messages_total",
		Help: "Billing messages by outcome and channel.",
	}, []string{"outcome", "channel"})

	SessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dairy_send_session_duration_seconds",
		Help:    "Wall time of send sessions by final state.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"state"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dairy_send_sessions_active",
		Help: "Send sessions currently running or paused.",
	})

	LedgerSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dairy_ledger_sync_total",
		Help: "Ledger reconciliations by result: created, updated, error.",
	}, []string{"result"})

	LedgerRowsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dairy_ledger_rows_added_total",
		Help: "Customer rows appended to ledgers by reconciliation.",
	})
)
