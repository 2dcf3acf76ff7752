package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_created_total",
		Help: "Total number of fulfillment orders opened",
	})

	StepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_step_transitions_total",
		Help: "Total number of successful step transitions",
	}, []string{"step"})

	TransitionConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_transition_conflicts_total",
		Help: "Total number of transitions rejected by the state guard",
	}, []string{"operation"})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_completed_total",
		Help: "Total number of orders completed with mutual ratings",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_cancelled_total",
		Help: "Total number of orders cancelled",
	})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_deleted_total",
		Help: "Total number of orders permanently deleted",
	})

	RatingsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_ratings_submitted_total",
		Help: "Total number of rating submissions, including edits",
	}, []string{"party"})

	ChatMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_chat_messages_total",
		Help: "Total number of chat messages appended",
	})

	ChatRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_chat_rate_limited_total",
		Help: "Total number of chat appends rejected by the rate limit",
	})

	ChatAppendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fulfillment_chat_append_latency_seconds",
		Help:    "Latency of chat append operations",
		Buckets: prometheus.DefBuckets,
	})

	ReputationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_reputation_updates_total",
		Help: "Total number of reputation entries applied by the worker",
	})

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
