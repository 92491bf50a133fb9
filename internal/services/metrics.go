package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_transactions_created_total",
		Help: "Transactions created, by initial status",
	}, []string{"status"})

	transactionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_transaction_transitions_total",
		Help: "Transaction state transitions, by action and resulting status",
	}, []string{"action", "status"})

	ticketsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventhub_tickets_reserved_total",
		Help: "Tickets reserved by new transactions",
	})

	ticketsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventhub_tickets_released_total",
		Help: "Tickets returned to sale by cancellations, expiries and rejections",
	})

	sweptTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_sweeper_transactions_total",
		Help: "Transactions settled by the sweeper, by job",
	}, []string{"job"})

	sweepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_sweeper_failures_total",
		Help: "Per-record sweeper failures, by job",
	}, []string{"job"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventhub_sweeper_pass_duration_seconds",
		Help:    "Duration of a full sweeper pass",
		Buckets: prometheus.DefBuckets,
	})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventhub_notification_failures_total",
		Help: "Failed best-effort notifications, by kind",
	}, []string{"kind"})
)
