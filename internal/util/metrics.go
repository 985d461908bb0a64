package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_state_transitions_total",
		Help: "Total number of order state transitions by target state",
	}, []string{"state"})

	CommandsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "table_commands_failed_total",
		Help: "Total number of rejected table commands",
	}, []string{"command", "reason"})

	PaymentsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_submitted_total",
		Help: "Total number of payment submissions by method",
	}, []string{"method"})

	PaymentsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_confirmed_total",
		Help: "Total number of confirmed payments",
	})

	PaymentsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_rejected_total",
		Help: "Total number of rejected payments",
	})

	CustomerStatsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "customer_stats_failed_total",
		Help: "Total number of customer statistics updates that failed",
	})

	DeviceConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_connections_total",
		Help: "Total number of device connect/disconnect operations",
	}, []string{"op"})

	TablesReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tables_released_total",
		Help: "Total number of tables force-closed by an admin",
	})

	TableCommitConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "table_commit_conflicts_total",
		Help: "Total number of table commits rejected because another writer committed first",
	})

	TableLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "table_lock_wait_seconds",
		Help:    "Time spent waiting for a table's serialized section",
		Buckets: prometheus.DefBuckets,
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of events delivered per sink",
	}, []string{"sink", "type"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "Total number of events dropped before or during delivery",
	}, []string{"sink"})

	ProductCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_lookups_total",
		Help: "Catalog lookups by cache result",
	}, []string{"result"})

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
