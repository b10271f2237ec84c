package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Total number of point transactions appended",
	}, []string{"type", "status"})

	LedgerPointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_points_total",
		Help: "Total points moved, by transaction type",
	}, []string{"type"})

	OrdersEscrowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_escrowed_total",
		Help: "Total number of orders with buyer funds escrowed",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders released to the seller",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order creations",
	}, []string{"reason"})

	CommissionPointsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_points_total",
		Help: "Points extracted from circulation as platform commission",
	})

	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_latency_seconds",
		Help:    "Latency of settlement transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	InspectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspections_total",
		Help: "Inspection requests by final transition",
	}, []string{"status"})

	DisputesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "disputes_resolved_total",
		Help: "Total number of resolved disputes",
	}, []string{"resolution"})

	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "withdrawals_total",
		Help: "Withdrawals by lifecycle status",
	}, []string{"status"})

	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deposits_total",
		Help: "Deposit confirmations by source and outcome",
	}, []string{"source", "outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
