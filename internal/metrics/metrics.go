package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database pool
	// ============================================
	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_pool_size",
		Help: "Database connection pool size",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_idle",
		Help: "Number of idle database connections",
	})

	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	// ============================================
	// NATS publisher
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_published_total",
			Help: "Total number of ledger events published to NATS",
		},
		[]string{"subject", "status"},
	)

	// ============================================
	// Reconciler
	// ============================================
	ChainEventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_chain_events_applied_total",
			Help: "Chain events applied to the ledger",
		},
		[]string{"kind"},
	)

	ChainEventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_chain_events_skipped_total",
			Help: "Chain events ignored (duplicate tx hash or unknown pending withdrawal)",
		},
		[]string{"kind", "reason"},
	)

	ChainEventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_chain_events_failed_total",
			Help: "Chain events whose application failed and was skipped",
		},
		[]string{"kind"},
	)

	CheckpointBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_checkpoint_block",
			Help: "Last block height processed per event kind",
		},
		[]string{"kind"},
	)

	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_reconcile_duration_seconds",
			Help:    "Duration of one reconciliation pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ReconcileErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_reconcile_errors_total",
			Help: "Reconciliation passes aborted before any event was applied",
		},
		[]string{"kind", "stage"},
	)

	// ============================================
	// Withdrawals
	// ============================================
	WithdrawalsAuthorized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_withdrawals_authorized_total",
		Help: "Withdrawal authorizations signed",
	})

	WithdrawalsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_withdrawals_rejected_total",
			Help: "Withdrawal requests rejected",
		},
		[]string{"reason"},
	)

	IdempotencyHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_withdraw_idempotency_hits_total",
		Help: "Withdrawal requests answered from the idempotency cache",
	})

	WithdrawalsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_withdrawals_confirmed_total",
		Help: "Pending withdrawals confirmed by a chain event",
	})

	WithdrawalsReversed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_withdrawals_reversed_total",
		Help: "Stale pending withdrawals credited back",
	})

	PendingWithdrawals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_pending_withdrawals",
		Help: "Live pending withdrawals",
	})

	StuckPendingWithdrawals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_pending_withdrawals_stuck",
		Help: "Stale pending withdrawals the reaper failed to settle on consecutive passes",
	})

	// ============================================
	// HTTP
	// ============================================
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
